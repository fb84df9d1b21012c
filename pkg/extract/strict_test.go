package extract

import "testing"

func TestValidateStrictJSON_Accepts(t *testing.T) {
	obj, err := ValidateStrictJSON(`{"id": "abc"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obj["id"] != "abc" {
		t.Errorf("got %v", obj)
	}
}

func TestValidateStrictJSON_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty":           "",
		"whitespace only": "   \n\t",
		"code fenced":     "```json\n{\"id\":1}\n```",
		"trailing junk":   `{"id":1} garbage`,
		"nan literal":     `{"id": NaN}`,
		"infinity":        `{"id": Infinity}`,
		"array top-level": `[1,2,3]`,
		"scalar top-level": `"hello"`,
	}
	for name, in := range cases {
		if _, err := ValidateStrictJSON(in); err == nil {
			t.Errorf("%s: expected rejection for %q", name, in)
		}
	}
}
