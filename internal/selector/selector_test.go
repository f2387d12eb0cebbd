package selector

import (
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/optipod/optipod/internal/objectdict"
)

func TestNamespaceFilterDenyTakesPrecedence(t *testing.T) {
	f := NamespaceFilter{Allow: []string{"ns1"}, Deny: []string{"ns1"}}
	if f.Matches("ns1") {
		t.Fatal("deny must win over allow")
	}
}

func TestNamespaceFilterEmptyAllowMeansAllExceptDenied(t *testing.T) {
	f := NamespaceFilter{Deny: []string{"kube-system"}}
	if f.Matches("kube-system") {
		t.Fatal("kube-system must be denied")
	}
	if !f.Matches("default") {
		t.Fatal("default should pass with empty allow list")
	}
}

func TestLabelSelectorMatchesMatchExpressions(t *testing.T) {
	sel := &metav1.LabelSelector{
		MatchExpressions: []metav1.LabelSelectorRequirement{
			{Key: "tier", Operator: metav1.LabelSelectorOpIn, Values: []string{"backend"}},
			{Key: "deprecated", Operator: metav1.LabelSelectorOpDoesNotExist},
		},
	}
	ok, err := LabelSelectorMatches(sel, map[string]string{"tier": "backend"})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected match")
	}

	ok, err = LabelSelectorMatches(sel, map[string]string{"tier": "backend", "deprecated": "true"})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected DoesNotExist to fail the match")
	}
}

func TestFromDictAcceptsCamelCaseSelector(t *testing.T) {
	raw := map[string]interface{}{
		"matchLabels": map[string]interface{}{"app": "web"},
		"matchExpressions": []interface{}{
			map[string]interface{}{
				"key":      "env",
				"operator": "In",
				"values":   []interface{}{"prod"},
			},
		},
	}
	sel := FromDict(objectdict.New(raw))
	ok, err := LabelSelectorMatches(sel, map[string]string{"app": "web", "env": "prod"})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected dynamic-object selector to match")
	}
}
