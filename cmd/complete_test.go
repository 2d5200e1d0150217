package cmd

import "testing"

func TestCompletion(t *testing.T) {
	c := Completion()
	for _, name := range []string{"arm", "open", "close", "invoice", "ingest", "serve", "verify", "topic"} {
		if _, ok := c.Sub[name]; !ok {
			t.Errorf("Completion() has no %q subcommand", name)
		}
	}
	if _, ok := c.Flags["store"]; !ok {
		t.Errorf("Completion() misses the global -store flag")
	}

	invoice := c.Sub["invoice"]
	if _, ok := invoice.Flags["memo"]; !ok {
		t.Errorf("invoice completion misses -memo")
	}
	if got := invoice.Flags["json"].Predict(""); len(got) != 0 {
		t.Errorf("invoice -json completion = %v, want no value", got)
	}

	topics := c.Sub["topic"].Args.Predict("")
	found := false
	for _, topic := range topics {
		found = found || topic == "portal"
	}
	if !found {
		t.Errorf("topic completion = %v, want the portal topic", topics)
	}
}
