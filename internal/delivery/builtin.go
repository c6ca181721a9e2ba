package delivery

import (
	"fmt"
	"strings"

	"github.com/idlesign/sitemessage/internal/models"
)

// Context keys used by the built-in message types.
const (
	SubjectKey  = "subject"
	ContentsKey = "contents"
	ItemsKey    = "items"
)

// RegisterBuiltinMessageTypes registers the message types shipped with the
// framework: plain, email_text, email_html and digest.
func RegisterBuiltinMessageTypes() {
	RegisterMessageTypes(
		&MessageType{
			Alias:                 "plain",
			Title:                 "Notification",
			AllowUserSubscription: true,
		},
		&MessageType{
			Alias:                 "email_text",
			Title:                 "Email",
			SupportedMessengers:   []string{"smtp"},
			AllowUserSubscription: true,
			Compile:               compileEmail,
		},
		&MessageType{
			Alias:                 "email_html",
			Title:                 "HTML email",
			SupportedMessengers:   []string{"smtp"},
			AllowUserSubscription: true,
			Compile:               compileEmail,
		},
		&MessageType{
			Alias:                 "digest",
			Title:                 "Digest",
			GroupMark:             "digest",
			AllowUserSubscription: true,
			Merge:                 mergeDigest,
			Compile:               compileDigest,
		},
	)
}

// compileEmail resolves email body from the contents field, falling back
// to simple text.
func compileEmail(msg *models.Message, messengerAlias string, d *models.Dispatch) (string, error) {
	if contents, ok := msg.Context[ContentsKey].(string); ok {
		return contents, nil
	}
	return CompileSimpleText(msg, messengerAlias, d)
}

// mergeDigest accumulates items from every scheduled message in the group.
func mergeDigest(old, incoming models.Context) models.Context {
	merged := MergeOverwrite(old, incoming)

	items, _ := old[ItemsKey].([]interface{})
	if more, ok := incoming[ItemsKey].([]interface{}); ok {
		merged[ItemsKey] = append(items, more...)
	}
	return merged
}

// compileDigest renders accumulated items one per line.
func compileDigest(msg *models.Message, messengerAlias string, d *models.Dispatch) (string, error) {
	items, ok := msg.Context[ItemsKey].([]interface{})
	if !ok {
		return CompileSimpleText(msg, messengerAlias, d)
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprint(item))
	}
	return strings.Join(lines, "\n"), nil
}
