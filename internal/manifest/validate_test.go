package manifest

import "testing"

func TestValidateAcceptsWellFormed(t *testing.T) {
	res, err := Validate([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Valid {
		t.Fatalf("manifest reported invalid: %+v", res.Issues)
	}
}

func TestValidateRejectsBadType(t *testing.T) {
	doc := []byte("name: x\ntype: workflow\n")
	res, err := Validate(doc)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Valid {
		t.Fatal("manifest with unknown type reported valid")
	}
	if len(res.Issues) == 0 {
		t.Fatal("no issues reported")
	}
}

func TestValidateRejectsUnknownDependencyGroup(t *testing.T) {
	doc := []byte("name: x\ndependencies:\n  pip:\n    - requests\n")
	res, err := Validate(doc)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Valid {
		t.Fatal("manifest with unknown dependency group reported valid")
	}
}
