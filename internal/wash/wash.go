// Package wash normalizes raw AniList GraphQL responses into the gateway's
// stable entity shapes. Every function here is pure and total over any
// syntactically valid JSON: fields upstream omitted, nulled or sent with an
// unexpected type come out as JSON null rather than failing the wash.
package wash

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	gateway "github.com/mediagate/mediagate/internal"
)

// Media washes a `search` query response (data.Media) into a gateway.Media
// tagged as coming from the API.
func Media(raw []byte) *gateway.Media {
	d := gjson.GetBytes(raw, "data.Media")
	return &gateway.Media{
		ID:           intOrNil(d.Get("id")),
		Romaji:       stringOrNil(d.Get("title.romaji")),
		Airing:       airing(d.Get("airingSchedule.nodes")),
		AverageScore: intOrNil(d.Get("averageScore")),
		MeanScore:    intOrNil(d.Get("meanScore")),
		Banner:       stringOrNil(d.Get("bannerImage")),
		Cover:        rawOrNull(d.Get("coverImage")),
		Duration:     intOrNil(d.Get("duration")),
		Episodes:     intOrNil(d.Get("episodes")),
		Chapters:     intOrNil(d.Get("chapters")),
		Volumes:      intOrNil(d.Get("volumes")),
		Format:       stringOrNil(d.Get("format")),
		Genres:       stringList(d.Get("genres")),
		Popularity:   intOrNil(d.Get("popularity")),
		Favourites:   intOrNil(d.Get("favourites")),
		Status:       stringOrNil(d.Get("status")),
		URL:          stringOrNil(d.Get("siteUrl")),
		EndDate:      date(d.Get("endDate")),
		StartDate:    date(d.Get("startDate")),
		DataFrom:     gateway.FromAPI,
	}
}

// Relations washes a `relation_stats` query response (data.Page.media).
// Upstream order is kept; an empty or absent list yields an empty, non-nil list.
func Relations(raw []byte) *gateway.RelationList {
	list := gjson.GetBytes(raw, "data.Page.media")
	out := &gateway.RelationList{Relations: []gateway.Relation{}}
	if !list.IsArray() {
		return out
	}
	list.ForEach(func(_, rel gjson.Result) bool {
		out.Relations = append(out.Relations, gateway.Relation{
			ID:       intOrNil(rel.Get("id")),
			Romaji:   stringOrNil(rel.Get("title.romaji")),
			English:  stringOrNil(rel.Get("title.english")),
			Native:   stringOrNil(rel.Get("title.native")),
			Synonyms: stringList(rel.Get("synonyms")),
			Type:     stringOrNil(rel.Get("type")),
			DataFrom: gateway.FromAPI,
		})
		return true
	})
	return out
}

// date renders a FuzzyDate object as "day/month/year" using each component's
// JSON text. Missing components print as "null", so an unknown date is
// "null/null/null".
func date(d gjson.Result) string {
	return rawText(d.Get("day")) + "/" + rawText(d.Get("month")) + "/" + rawText(d.Get("year"))
}

func airing(nodes gjson.Result) []gateway.AiringNode {
	if !nodes.IsArray() {
		return nil
	}
	out := []gateway.AiringNode{}
	nodes.ForEach(func(_, node gjson.Result) bool {
		if !node.IsObject() {
			out = append(out, gateway.AiringNode{Raw: json.RawMessage(node.Raw)})
			return true
		}
		n := gateway.AiringNode{Extra: map[string]json.RawMessage{}}
		node.ForEach(func(key, val gjson.Result) bool {
			if key.String() == "timeUntilAiring" {
				if val.Type == gjson.Number {
					secs := val.Int()
					n.TimeUntilAiring = &secs
				}
				return true
			}
			n.Extra[key.String()] = json.RawMessage(val.Raw)
			return true
		})
		out = append(out, n)
		return true
	})
	return out
}

func intOrNil(r gjson.Result) *int {
	if r.Type != gjson.Number {
		return nil
	}
	v := int(r.Int())
	return &v
}

func stringOrNil(r gjson.Result) *string {
	if r.Type != gjson.String {
		return nil
	}
	v := r.String()
	return &v
}

// stringList keeps the string elements of r; nulls and other types are dropped.
func stringList(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	out := []string{}
	r.ForEach(func(_, v gjson.Result) bool {
		if v.Type == gjson.String {
			out = append(out, v.String())
		}
		return true
	})
	return out
}

func rawOrNull(r gjson.Result) json.RawMessage {
	if !r.Exists() {
		return json.RawMessage("null")
	}
	return json.RawMessage(r.Raw)
}

func rawText(r gjson.Result) string {
	if !r.Exists() {
		return "null"
	}
	return r.Raw
}
