package notion

import (
	"regexp"
	"strings"
	"unicode/utf16"

	"github.com/fitlab/promptsync/internal/remote"
	"github.com/fitlab/promptsync/internal/schema"
	"github.com/fitlab/promptsync/internal/syncerr"
)

// Database property names.
const (
	propName          = "Name"
	propVersion       = "Version"
	propDescription   = "Description"
	propTemplate      = "Template"
	propTags          = "Tags"
	propCategory      = "Kategorie"
	propOriginName    = "Origin Name"
	propOriginSource  = "Origin Source"
	propOriginConcept = "Origin Concept"

	// Role-split template of older databases.
	propSystemPrompt = "System Prompt"
	propUserTemplate = "User Template"
)

// Fallbacks for pages of older databases whose title is a display name.
const (
	legacyNamespace       = "fit"
	legacyCategory        = "uncategorised"
	legacyVersion         = "0.1.0"
	legacyTitle           = "untitled"
	legacyDescriptionRune = 100
)

// maxTextUnits is the length limit of a single rich text object. Notion
// counts it in UTF-16 code units.
const maxTextUnits = 2000

// textProps maps plain rich_text properties to record fields.
var textProps = []struct {
	prop  string
	field string
}{
	{propDescription, remote.FieldDescription},
	{propTemplate, remote.FieldTemplate},
}

var originProps = []struct {
	prop string
	key  string
}{
	{propOriginName, remote.OriginName},
	{propOriginSource, remote.OriginSource},
	{propOriginConcept, remote.OriginConcept},
}

var oldestFirst = []querySort{{Timestamp: "created_time", Direction: "ascending"}}

type queryRequest struct {
	PageSize    int          `json:"page_size,omitempty"`
	StartCursor string       `json:"start_cursor,omitempty"`
	Filter      *queryFilter `json:"filter,omitempty"`
	Sorts       []querySort  `json:"sorts,omitempty"`
}

type queryFilter struct {
	Property string      `json:"property"`
	Title    *textFilter `json:"title,omitempty"`
}

type textFilter struct {
	Equals string `json:"equals"`
}

type querySort struct {
	Timestamp string `json:"timestamp"`
	Direction string `json:"direction"`
}

type queryResponse struct {
	Results    []page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

type errorResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// database is the part of GET /v1/databases/{id} the client reads.
type database struct {
	ID         string                    `json:"id"`
	Properties map[string]propertySchema `json:"properties"`
}

type propertySchema struct {
	Type string `json:"type"`
}

// layout is the property set of one database.
type layout map[string]string // property name -> type

func (l layout) has(prop string) bool {
	_, ok := l[prop]
	return ok
}

// roleSplit reports whether the database stores the template as separate
// system and user properties.
func (l layout) roleSplit() bool {
	return !l.has(propTemplate) && (l.has(propSystemPrompt) || l.has(propUserTemplate))
}

type page struct {
	ID          string              `json:"id"`
	Archived    bool                `json:"archived"`
	InTrash     bool                `json:"in_trash"`
	CreatedTime string              `json:"created_time"`
	Properties  map[string]property `json:"properties"`
}

type property struct {
	Type        string         `json:"type"`
	Title       []richText     `json:"title,omitempty"`
	RichText    []richText     `json:"rich_text,omitempty"`
	Select      *selectOption  `json:"select,omitempty"`
	MultiSelect []selectOption `json:"multi_select,omitempty"`
}

// text returns the plain text of a title, rich_text or select property.
func (p property) text() string {
	switch {
	case p.Select != nil:
		return p.Select.Name
	case len(p.Title) > 0:
		return plainText(p.Title)
	default:
		return plainText(p.RichText)
	}
}

type richText struct {
	PlainText string `json:"plain_text"`
}

type selectOption struct {
	Name string `json:"name"`
}

func (p page) hidden() bool {
	return p.Archived || p.InTrash
}

func (p page) roleSplit() bool {
	_, template := p.Properties[propTemplate]
	_, system := p.Properties[propSystemPrompt]
	_, user := p.Properties[propUserTemplate]
	return !template && (system || user)
}

func (p page) text(prop string) (string, bool) {
	v, ok := p.Properties[prop]
	if !ok {
		return "", false
	}
	return v.text(), true
}

// record converts a page into record fields. Properties the database does
// not have are left out so the mapper can report them.
func (p page) record() remote.Record {
	fields := remote.Fields{}

	if title, ok := p.text(propName); ok {
		fields[remote.FieldName] = title
	}
	if version, ok := p.text(propVersion); ok && version != "" {
		fields[remote.FieldVersion] = version
	}
	for _, tp := range textProps {
		if text, ok := p.text(tp.prop); ok {
			if text != "" || tp.field == remote.FieldTemplate {
				fields[tp.field] = text
			}
		}
	}
	if prop, ok := p.Properties[propTags]; ok {
		tags := make([]string, 0, len(prop.MultiSelect))
		for _, opt := range prop.MultiSelect {
			tags = append(tags, opt.Name)
		}
		fields[remote.FieldTags] = tags
	}

	origin := make(map[string]any)
	for _, op := range originProps {
		if text, _ := p.text(op.prop); text != "" {
			origin[op.key] = text
		}
	}
	if len(origin) > 0 {
		fields[remote.FieldOrigin] = origin
	}

	if p.roleSplit() {
		p.fillRoleSplit(fields)
	}
	return remote.Record{ID: p.ID, Fields: fields}
}

// fillRoleSplit completes the fields of a page from an older database: the
// template is assembled from its role properties, and a display-name title
// becomes fit/<category>/<slug>@<version>.
func (p page) fillRoleSplit(fields remote.Fields) {
	system, _ := p.text(propSystemPrompt)
	user, _ := p.text(propUserTemplate)
	fields[remote.FieldTemplate] = joinRoles(system, user)

	title, _ := fields[remote.FieldName].(string)
	if _, err := schema.ParseName(title); err != nil {
		category, _ := p.text(propCategory)
		version, _ := fields[remote.FieldVersion].(string)
		if version == "" {
			version = legacyVersion
			fields[remote.FieldVersion] = version
		}
		fields[remote.FieldName] = legacyName(title, category, version)
		if _, ok := fields[remote.FieldDescription]; !ok {
			fields[remote.FieldDescription] = legacyDescription(title, user)
		}
	}
}

func legacyName(title, category, version string) string {
	cat := slugify(category)
	if cat == "" {
		cat = legacyCategory
	}
	slug := slugify(title)
	if slug == "" {
		slug = legacyTitle
	}
	return legacyNamespace + "/" + cat + "/" + slug + "@" + version
}

func legacyDescription(title, user string) string {
	if user == "" {
		return title
	}
	line, _, _ := strings.Cut(user, "\n")
	if runes := []rune(line); len(runes) > legacyDescriptionRune {
		line = string(runes[:legacyDescriptionRune])
	}
	return line
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

const (
	systemOpen  = "<system>\n"
	roleBetween = "\n</system>\n<user>\n"
	userClose   = "\n</user>"
)

func joinRoles(system, user string) string {
	return systemOpen + system + roleBetween + user + userClose
}

// splitRoles is the inverse of joinRoles.
func splitRoles(template string) (system, user string, ok bool) {
	rest, ok := strings.CutPrefix(template, systemOpen)
	if !ok {
		return "", "", false
	}
	rest, ok = strings.CutSuffix(rest, userClose)
	if !ok {
		return "", "", false
	}
	system, user, ok = strings.Cut(rest, roleBetween)
	if !ok || joinRoles(system, user) != template {
		return "", "", false
	}
	return system, user, true
}

func plainText(parts []richText) string {
	var b strings.Builder
	for _, part := range parts {
		b.WriteString(part.PlainText)
	}
	return b.String()
}

// propertiesOf builds the full property set of a template. Every mapped
// property is sent, empty ones included, so stale values are cleared. The
// role properties are only present when the template splits into them.
func propertiesOf(name string, fields remote.Fields) (map[string]any, error) {
	n, err := schema.ParseName(name)
	if err != nil {
		return nil, err
	}

	props := map[string]any{
		propName:     map[string]any{"title": textChunks(name)},
		propVersion:  textValue("rich_text", n.Version),
		propCategory: textValue("select", n.Category),
	}

	for _, tp := range textProps {
		s, err := stringField(fields, tp.field)
		if err != nil {
			return nil, err
		}
		props[tp.prop] = map[string]any{"rich_text": textChunks(s)}
	}

	tags, err := tagsField(fields)
	if err != nil {
		return nil, err
	}
	options := make([]map[string]string, 0, len(tags))
	for _, tag := range tags {
		options = append(options, map[string]string{"name": tag})
	}
	props[propTags] = map[string]any{"multi_select": options}

	origin, err := originField(fields)
	if err != nil {
		return nil, err
	}
	for _, op := range originProps {
		props[op.prop] = map[string]any{"rich_text": textChunks(origin[op.key])}
	}

	template, _ := stringField(fields, remote.FieldTemplate)
	if system, user, ok := splitRoles(template); ok {
		props[propSystemPrompt] = map[string]any{"rich_text": textChunks(system)}
		props[propUserTemplate] = map[string]any{"rich_text": textChunks(user)}
	}
	return props, nil
}

// fit narrows props to the properties the database has and renders Version
// and Kategorie in the database's property type.
func (l layout) fit(name string, props map[string]any) (map[string]any, error) {
	if !l.has(propName) {
		return nil, syncerr.Mismatch(remote.FieldName, "database has no %q title property", propName)
	}
	if _, split := props[propSystemPrompt]; l.roleSplit() && !split {
		return nil, syncerr.Mismatch(remote.FieldTemplate,
			"database stores %q and %q; template needs exactly one <system> and one <user> section",
			propSystemPrompt, propUserTemplate)
	}

	n, err := schema.ParseName(name)
	if err != nil {
		return nil, err
	}
	for prop, value := range map[string]string{propVersion: n.Version, propCategory: n.Category} {
		if kind, ok := l[prop]; ok {
			props[prop] = textValue(kind, value)
		}
	}

	out := make(map[string]any, len(props))
	for prop, value := range props {
		if l.has(prop) {
			out[prop] = value
		}
	}
	return out, nil
}

// textValue renders s for a select or rich_text property.
func textValue(kind, s string) map[string]any {
	switch kind {
	case "select":
		if s == "" {
			return map[string]any{"select": nil}
		}
		return map[string]any{"select": map[string]string{"name": s}}
	case "title":
		return map[string]any{"title": textChunks(s)}
	default:
		return map[string]any{"rich_text": textChunks(s)}
	}
}

// textChunks splits s into rich text objects of at most maxTextUnits UTF-16
// code units, never inside a character. The result is never nil; an empty
// slice clears the property.
func textChunks(s string) []map[string]any {
	chunks := make([]map[string]any, 0, 1)
	start, units := 0, 0
	flush := func(end int) {
		chunks = append(chunks, map[string]any{
			"type": "text",
			"text": map[string]string{"content": s[start:end]},
		})
		start, units = end, 0
	}
	for i, r := range s {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > maxTextUnits {
			flush(i)
		}
		units += n
	}
	if start < len(s) {
		flush(len(s))
	}
	return chunks
}

func stringField(fields remote.Fields, key string) (string, error) {
	switch v := fields[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", syncerr.Mismatch(key, "want string, got %T", v)
	}
}

func tagsField(fields remote.Fields) ([]string, error) {
	switch v := fields[remote.FieldTags].(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []any:
		tags := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, syncerr.Mismatch(remote.FieldTags, "want string item, got %T", item)
			}
			tags = append(tags, s)
		}
		return tags, nil
	default:
		return nil, syncerr.Mismatch(remote.FieldTags, "want list of strings, got %T", v)
	}
}

func originField(fields remote.Fields) (map[string]string, error) {
	out := make(map[string]string, len(originProps))
	switch v := fields[remote.FieldOrigin].(type) {
	case nil:
	case map[string]string:
		for k, s := range v {
			out[k] = s
		}
	case map[string]any:
		for k, item := range v {
			switch s := item.(type) {
			case nil:
			case string:
				out[k] = s
			default:
				return nil, syncerr.Mismatch(remote.FieldOrigin+"."+k, "want string, got %T", item)
			}
		}
	default:
		return nil, syncerr.Mismatch(remote.FieldOrigin, "want object, got %T", v)
	}
	return out, nil
}
