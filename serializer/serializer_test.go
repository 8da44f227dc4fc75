package serializer_test

import (
	"testing"

	"github.com/vasont/Foundatio/serializer"
)

type resize struct {
	ImageID int    `json:"image_id"`
	Format  string `json:"format"`
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", serializer.NameJSON, serializer.NameMsgpack} {
		s, err := serializer.ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		want := name
		if want == "" {
			want = serializer.NameJSON
		}
		if s.Name() != want {
			t.Errorf("ByName(%q).Name() = %q, want %q", name, s.Name(), want)
		}
	}
	if _, err := serializer.ByName("xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestMsgpackUsesJSONTags(t *testing.T) {
	s := serializer.Msgpack{}
	data, err := s.Marshal(resize{ImageID: 42, Format: "png"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]any
	if err := s.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal map: %v", err)
	}
	if _, ok := m["image_id"]; !ok {
		t.Errorf("expected key image_id, got %v", m)
	}

	var got resize
	if err := s.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.ImageID != 42 || got.Format != "png" {
		t.Errorf("got %+v", got)
	}
}

func TestJSONRejectsGarbage(t *testing.T) {
	var v resize
	if err := (serializer.JSON{}).Unmarshal([]byte("{not json"), &v); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestMsgpackOmitsEmptyFields(t *testing.T) {
	s := serializer.Msgpack{}
	data, err := s.Marshal(resize{ImageID: 7})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]any
	if err := s.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := m["format"]; ok {
		t.Errorf("empty format was encoded: %v", m)
	}
	if len(m) != 1 {
		t.Errorf("got %v, want only image_id", m)
	}
}

func TestMsgpackPooledCodecsKeepTags(t *testing.T) {
	s := serializer.Msgpack{}
	for i := 1; i <= 20; i++ {
		data, err := s.Marshal(resize{ImageID: i, Format: "jpg"})
		if err != nil {
			t.Fatalf("Marshal %d: %v", i, err)
		}
		var got resize
		if err := s.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal %d: %v", i, err)
		}
		if got.ImageID != i || got.Format != "jpg" {
			t.Fatalf("round %d: got %+v", i, got)
		}
	}
}

func TestMsgpackRejectsTruncatedInput(t *testing.T) {
	s := serializer.Msgpack{}
	data, _ := s.Marshal(resize{ImageID: 1, Format: "png"})
	var got resize
	if err := s.Unmarshal(data[:len(data)-2], &got); err == nil {
		t.Fatal("expected decode error for truncated input")
	}
}
