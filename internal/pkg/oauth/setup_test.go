package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
)

func TestProviders(t *testing.T) {
	env.Env = map[string]string{
		"GOOGLE_KEY":     "gkey",
		"GOOGLE_SECRET":  "gsecret",
		"DISCORD_KEY":    "dkey",
		"DISCORD_SECRET": "",
	}
	t.Cleanup(func() { env.Env = nil })

	providers := Providers("https://courses.example.com/")
	require.Len(t, providers, 1, "providers without a secret are skipped")
	assert.Equal(t, "google", providers[0].Name())
}

func TestProviders_NoneConfigured(t *testing.T) {
	env.Env = map[string]string{}
	t.Cleanup(func() { env.Env = nil })

	assert.Empty(t, Providers("http://localhost:4000"))
}
