package logx

import "testing"

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")
	SetLevel("warn")
	if Enabled("info") || !Enabled("warn") || !Enabled("error") { t.Fatal("warn level filters wrong") }
	SetLevel("bogus")
	if Enabled("info") { t.Fatal("unknown level changed the current level") }
	SetLevel("DEBUG")
	if !Enabled("debug") { t.Fatal("expected debug enabled") }
	if Enabled("nonsense") { t.Fatal("unknown level reported enabled") }
}
