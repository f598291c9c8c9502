package project

import (
	"slices"
	"strings"

	"github.com/daimoniac/dtrack-upload/internal/dtrack"
)

// Desired holds caller-supplied project metadata. A nil pointer, an empty
// string or an empty tag list means the field was not given.
type Desired struct {
	Description *string
	Classifier  *string
	SwidTagID   *string
	Group       *string
	Tags        []string
	IsLatest    *bool
}

// IsEmpty reports whether no metadata was supplied at all
func (d Desired) IsEmpty() bool {
	return !isSet(d.Description) &&
		!isSet(d.Classifier) &&
		!isSet(d.SwidTagID) &&
		!isSet(d.Group) &&
		len(normalizeTags(d.Tags)) == 0 &&
		d.IsLatest == nil
}

// Change names one field that differs between server state and Desired
type Change struct {
	Field string
	From  string
	To    string
}

// Diff compares the server-side project against the desired metadata. It
// returns the patch to send and the changed fields; no changes means no
// update call. The patch always carries isLatest, the desired value when
// given and the current one otherwise, since the server resets the flag when
// it is omitted.
func Diff(current *dtrack.Project, desired Desired) (dtrack.ProjectPatch, []Change) {
	var patch dtrack.ProjectPatch
	var changes []Change

	diffString := func(field string, have string, want *string, dst **string) {
		if !isSet(want) || *want == have {
			return
		}
		value := *want
		*dst = &value
		changes = append(changes, Change{Field: field, From: have, To: value})
	}

	diffString("description", current.Description, desired.Description, &patch.Description)
	diffString("classifier", current.Classifier, desired.Classifier, &patch.Classifier)
	diffString("swidTagId", current.SwidTagID, desired.SwidTagID, &patch.SwidTagID)
	diffString("group", current.Group, desired.Group, &patch.Group)

	if want := nonBlank(desired.Tags); len(want) > 0 && !SameTags(current.TagNames(), want) {
		patch.Tags = make([]dtrack.Tag, 0, len(want))
		for _, name := range want {
			patch.Tags = append(patch.Tags, dtrack.Tag{Name: name})
		}
		changes = append(changes, Change{
			Field: "tags",
			From:  strings.Join(current.TagNames(), ","),
			To:    strings.Join(want, ","),
		})
	}

	isLatest := current.IsLatest
	if desired.IsLatest != nil {
		if *desired.IsLatest != current.IsLatest {
			changes = append(changes, Change{
				Field: "isLatest",
				From:  boolString(current.IsLatest),
				To:    boolString(*desired.IsLatest),
			})
		}
		isLatest = *desired.IsLatest
	}
	patch.IsLatest = &isLatest

	return patch, changes
}

// SameTags compares two tag lists as case-insensitive sets
func SameTags(a, b []string) bool {
	return slices.Equal(tagKeys(a), tagKeys(b))
}

// SplitTags parses a newline separated tag list, dropping blank lines
func SplitTags(raw string) []string {
	return normalizeTags(strings.Split(raw, "\n"))
}

// normalizeTags trims names, drops empties and removes case-insensitive
// duplicates, keeping the first spelling seen.
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// nonBlank drops empty and whitespace-only names and keeps the rest as given
func nonBlank(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if strings.TrimSpace(tag) != "" {
			out = append(out, tag)
		}
	}
	return out
}

func tagKeys(tags []string) []string {
	keys := normalizeTags(tags)
	for i := range keys {
		keys[i] = strings.ToLower(keys[i])
	}
	slices.Sort(keys)
	return keys
}

func isSet(s *string) bool {
	return s != nil && *s != ""
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
