package delivery

import (
	"testing"

	"github.com/idlesign/sitemessage/internal/models"
)

func TestRegisterBuiltinMessageTypes(t *testing.T) {
	resetRegistries(t)
	RegisterBuiltinMessageTypes()

	for _, alias := range []string{"plain", "email_text", "email_html", "digest"} {
		if _, err := MessageTypeByAlias(alias); err != nil {
			t.Errorf("builtin %s not registered: %v", alias, err)
		}
	}

	email, _ := MessageTypeByAlias("email_text")
	if !email.Supports("smtp") {
		t.Error("email_text must support smtp")
	}
	if email.Supports("telegram") {
		t.Error("email_text must be smtp only")
	}

	digest, _ := MessageTypeByAlias("digest")
	if digest.GroupMark == "" {
		t.Error("digest must carry a group mark")
	}
}

func TestCompileEmail_PrefersContents(t *testing.T) {
	msg := &models.Message{Context: models.Context{
		ContentsKey:   "<p>hello</p>",
		SimpleTextKey: "hello",
	}}
	body, err := compileEmail(msg, "smtp", nil)
	if err != nil {
		t.Fatalf("compileEmail: %v", err)
	}
	if body != "<p>hello</p>" {
		t.Errorf("body = %q, want contents field", body)
	}
}

func TestCompileEmail_FallsBackToSimpleText(t *testing.T) {
	msg := &models.Message{Context: models.Context{SimpleTextKey: "hello"}}
	body, err := compileEmail(msg, "smtp", nil)
	if err != nil {
		t.Fatalf("compileEmail: %v", err)
	}
	if body != "hello" {
		t.Errorf("body = %q, want simple text", body)
	}
}

func TestMergeDigest_AccumulatesItems(t *testing.T) {
	merged := mergeDigest(
		models.Context{ItemsKey: []interface{}{"a", "b"}},
		models.Context{ItemsKey: []interface{}{"c"}},
	)
	items, ok := merged[ItemsKey].([]interface{})
	if !ok || len(items) != 3 {
		t.Fatalf("items = %#v, want 3 accumulated", merged[ItemsKey])
	}
	if items[2] != "c" {
		t.Errorf("items = %#v, incoming appended last", items)
	}
}

func TestCompileDigest_JoinsLines(t *testing.T) {
	msg := &models.Message{Context: models.Context{
		ItemsKey: []interface{}{"first", "second"},
	}}
	body, err := compileDigest(msg, "mock", nil)
	if err != nil {
		t.Fatalf("compileDigest: %v", err)
	}
	if body != "first\nsecond" {
		t.Errorf("body = %q", body)
	}
}
