package demo

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghginventory.org/internal/ability"
	"ghginventory.org/internal/registry"
)

func TestLoadPopulatesRegistry(t *testing.T) {
	ctx := context.Background()
	store := registry.NewInMemory()
	sc := RegistryScenario()

	loaded, err := Load(ctx, store, sc, "demo-password")
	require.NoError(t, err)
	assert.Len(t, loaded.Companies, len(sc.Companies))
	assert.Len(t, loaded.Users, len(sc.Users))

	progs, err := store.ListProgrammes(ctx)
	require.NoError(t, err)
	assert.Len(t, progs, len(sc.Programmes))

	again, err := Load(ctx, store, sc, "demo-password")
	require.NoError(t, err)
	assert.Equal(t, loaded.Users["admin@verity.example"].ID, again.Users["admin@verity.example"].ID)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, len(sc.Users))
}

func TestLoadedProgrammesFollowPolicy(t *testing.T) {
	ctx := context.Background()
	store := registry.NewInMemory()
	loaded, err := Load(ctx, store, RegistryScenario(), "demo-password")
	require.NoError(t, err)

	get := func(id string) *registry.Programme {
		p, err := store.GetProgramme(ctx, id)
		require.NoError(t, err)
		return &p
	}
	certifier := loaded.Users["admin@verity.example"]
	developer := loaded.Users["manager@sunfield.example"]

	certAbility := ability.ForUser(&certifier)
	assert.True(t, certAbility.Can(ability.ActionRead, get("SUN-001")))
	assert.False(t, certAbility.Can(ability.ActionRead, get("RIV-001")))

	devAbility := ability.ForUser(&developer)
	assert.True(t, devAbility.Can(ability.ActionRead, get("SUN-002")))
	assert.False(t, devAbility.Can(ability.ActionRead, get("RIV-001")))
}

func TestLoadRejectsWeakPassword(t *testing.T) {
	_, err := Load(context.Background(), registry.NewInMemory(), RegistryScenario(), "short")
	require.Error(t, err)
}

func TestGeneratorIsDeterministic(t *testing.T) {
	sc := RegistryScenario()
	a := NewGenerator(sc, 42)
	b := NewGenerator(sc, 42)
	emails := map[string]bool{}
	for _, e := range sc.Emails() {
		emails[e] = true
	}
	for i := 0; i < 50; i++ {
		ra, rb := a.Next(), b.Next()
		require.Equal(t, ra.Path, rb.Path)
		require.Equal(t, ra.Email, rb.Email)
		require.True(t, emails[ra.Email], "unknown email %s", ra.Email)
	}
}

func TestCounter(t *testing.T) {
	var c Counter
	c.Add(http.StatusOK)
	c.Add(http.StatusOK)
	c.Add(http.StatusForbidden)
	c.Fail()

	assert.Equal(t, 2, c.Count(http.StatusOK))
	assert.Equal(t, 4, c.Total())
	assert.Equal(t, "200=2 403=1 transport_errors=1", c.String())
}
