package handlers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"memegen-bot/internal/memeapi"
)

func TestFormatTemplateListSkipsDeniedKeys(t *testing.T) {
	all := []memeapi.TemplateInfo{
		{Key: "drake", Keywords: []string{"drake"}},
		{Key: "cursed", Keywords: []string{"cursed"}},
		{Key: "petpet"},
	}
	deny := map[string]struct{}{"cursed": {}}

	out := formatTemplateList(all, deny)

	require.True(t, strings.HasPrefix(out, "2 templates:\n"))
	require.NotContains(t, out, "cursed")
	require.Contains(t, out, "drake — drake\n")
	require.Contains(t, out, "petpet\n")
}

func TestFormatTemplateListEmpty(t *testing.T) {
	require.Empty(t, formatTemplateList(nil, nil))

	all := []memeapi.TemplateInfo{{Key: "cursed"}}
	deny := map[string]struct{}{"cursed": {}}
	require.Empty(t, formatTemplateList(all, deny))
}
