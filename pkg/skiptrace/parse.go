package skiptrace

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/sells-group/parcel-resolver/internal/model"
)

// parseResponse extracts the first person from a skip-trace response. Missing
// or oddly typed fields degrade to empty values; a body with no person yields
// nil.
func parseResponse(body []byte) *model.PersonEnrichmentResult {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil
	}

	person := firstPerson(doc)
	if person == nil {
		return nil
	}

	res := &model.PersonEnrichmentResult{Raw: json.RawMessage(body)}

	if name, ok := person["name"].(map[string]any); ok {
		res.FirstName = str(name["first"])
		res.LastName = str(name["last"])
	}
	if res.FirstName == "" {
		res.FirstName = str(person["firstName"])
	}
	if res.LastName == "" {
		res.LastName = str(person["lastName"])
	}

	res.Phones = parsePhones(firstList(person, "phoneNumbers", "phones"))
	res.Emails = parseEmails(firstList(person, "emails", "emailAddresses"))
	res.Relatives = parseRelatives(firstList(person, "relatives", "associates"))

	if age, ok := model.ToFloat(person["age"]); ok && age > 0 {
		n := int(age)
		res.Age = &n
	}

	if res.FirstName == "" && res.LastName == "" && len(res.Phones) == 0 && len(res.Emails) == 0 {
		return nil
	}
	return res
}

// firstPerson finds the first person object under the known envelopes:
// {"results":{"persons":[...]}}, {"persons":[...]} or {"person":{...}}.
func firstPerson(doc any) map[string]any {
	root, ok := doc.(map[string]any)
	if !ok {
		return nil
	}
	if results, ok := root["results"].(map[string]any); ok {
		root = results
	}
	if list, ok := root["persons"].([]any); ok {
		for _, item := range list {
			if p, ok := item.(map[string]any); ok {
				return p
			}
		}
		return nil
	}
	if p, ok := root["person"].(map[string]any); ok {
		return p
	}
	return nil
}

func firstList(m map[string]any, keys ...string) []any {
	for _, k := range keys {
		if list, ok := m[k].([]any); ok {
			return list
		}
	}
	return nil
}

func parsePhones(list []any) []model.Phone {
	var out []model.Phone
	for _, item := range list {
		if len(out) == model.MaxPhones {
			break
		}
		var p model.Phone
		switch v := item.(type) {
		case string:
			p.Number = strings.TrimSpace(v)
		case map[string]any:
			p.Number = firstStr(v, "number", "phoneNumber", "phone")
			p.Type = firstStr(v, "type", "lineType")
			p.DoNotCall = truthy(v["dnc"])
		}
		if p.Number != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseEmails(list []any) []string {
	var out []string
	for _, item := range list {
		if len(out) == model.MaxEmails {
			break
		}
		var e string
		switch v := item.(type) {
		case string:
			e = strings.TrimSpace(v)
		case map[string]any:
			e = firstStr(v, "email", "address")
		}
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

func parseRelatives(list []any) []string {
	var out []string
	for _, item := range list {
		if len(out) == model.MaxRelatives {
			break
		}
		var name string
		switch v := item.(type) {
		case string:
			name = strings.TrimSpace(v)
		case map[string]any:
			switch n := v["name"].(type) {
			case string:
				name = strings.TrimSpace(n)
			case map[string]any:
				name = firstStr(n, "full", "fullName")
				if name == "" {
					name = strings.TrimSpace(str(n["first"]) + " " + str(n["last"]))
				}
			}
			if name == "" {
				name = firstStr(v, "fullName")
			}
		}
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

func str(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	}
	return ""
}

func firstStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := str(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "y", "yes", "1":
			return true
		}
	case json.Number:
		return x.String() != "0"
	}
	return false
}
