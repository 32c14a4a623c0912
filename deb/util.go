package deb

import (
	"fmt"
	"strings"

	"pault.ag/go/debian/control"
)

// parseControlFile parses a control stanza into m. Known fields map to the
// struct; everything else, Installed-Size included, lands in ExtraFields.
// Description continuation lines are unfolded.
func parseControlFile(content string, m *Metadata) error {
	r, err := control.NewParagraphReader(strings.NewReader(content), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveFormat, err)
	}
	p, err := r.Next()
	if err != nil {
		return fmt.Errorf("%w: control file: %v", ErrArchiveFormat, err)
	}
	if m.ExtraFields == nil {
		m.ExtraFields = make(map[string]string)
	}
	for _, key := range p.Order {
		val := strings.TrimSpace(p.Values[key])
		switch ControlField(key) {
		case FieldPackage:
			m.Package = val
		case FieldVersion:
			m.Version = val
		case FieldArchitecture:
			m.Architecture = val
		case FieldMaintainer:
			m.Maintainer = val
		case FieldDescription:
			m.Description = val
		case FieldSection:
			m.Section = val
		case FieldPriority:
			m.Priority = val
		case FieldHomepage:
			m.Homepage = val
		case FieldVcsBrowser:
			m.Repository = val
		case FieldEssential:
			m.Essential = val == "yes"
		case FieldDepends:
			m.Depends = splitList(val)
		case FieldPreDepends:
			m.PreDepends = splitList(val)
		case FieldRecommends:
			m.Recommends = splitList(val)
		case FieldSuggests:
			m.Suggests = splitList(val)
		case FieldEnhances:
			m.Enhances = splitList(val)
		case FieldConflicts:
			m.Conflicts = splitList(val)
		case FieldBreaks:
			m.Breaks = splitList(val)
		case FieldReplaces:
			m.Replaces = splitList(val)
		case FieldProvides:
			m.Provides = splitList(val)
		case FieldBuiltUsing:
			m.BuiltUsing = val
		case FieldSource:
			m.Source = val
		default:
			m.ExtraFields[key] = val
		}
	}
	return nil
}

// splitList splits a comma separated relationship field, trimming each item.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var res []string
	for _, p := range strings.Split(s, ",") {
		res = append(res, strings.TrimSpace(p))
	}
	return res
}
