package template

import "testing"

func TestRender_SubstitutesBoundPlaceholders(t *testing.T) {
	body := "Hostname={{container_name}}\nImage={{image_name}}\n"
	bindings := map[string]string{
		"container_name": "web-01",
		"image_name":     "ubuntu-24.04-cloud-tar",
	}

	got, err := Render(body, bindings)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	want := "Hostname=web-01\nImage=ubuntu-24.04-cloud-tar\n"
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestRender_UnboundPlaceholderIsAnError(t *testing.T) {
	body := "Hostname={{container_name}}\n"

	_, err := Render(body, map[string]string{})
	if err == nil {
		t.Fatalf("Render() error = nil, want unbound placeholder error")
	}

	var unbound *UnboundPlaceholderError
	if !asUnbound(err, &unbound) {
		t.Fatalf("Render() error = %v, want *UnboundPlaceholderError", err)
	}
	if unbound.Name != "container_name" {
		t.Fatalf("unbound name = %q, want %q", unbound.Name, "container_name")
	}
}

func asUnbound(err error, target **UnboundPlaceholderError) bool {
	u, ok := err.(*UnboundPlaceholderError)
	if !ok {
		return false
	}
	*target = u
	return true
}

func TestRender_NoPlaceholdersIsPassthrough(t *testing.T) {
	body := "[Exec]\nBoot=on\n"

	got, err := Render(body, nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != body {
		t.Fatalf("Render() = %q, want unchanged %q", got, body)
	}
}

func TestRender_ToleratesWhitespaceInsideBraces(t *testing.T) {
	body := "{{ name }}"

	got, err := Render(body, map[string]string{"name": "value"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != "value" {
		t.Fatalf("Render() = %q, want %q", got, "value")
	}
}

func TestPlaceholders_ReturnsDistinctNamesInOrder(t *testing.T) {
	body := "{{a}} {{b}} {{a}} {{c}}"

	got := Placeholders(body)
	want := []string{"a", "b", "c"}

	if len(got) != len(want) {
		t.Fatalf("Placeholders() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Placeholders()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMustRender_PanicsOnUnbound(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("MustRender() did not panic on unbound placeholder")
		}
	}()
	MustRender("{{missing}}", nil)
}
