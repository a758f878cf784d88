package policy_test

import (
	"errors"
	"testing"

	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/domain/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptingBroker_SessionGrant(t *testing.T) {
	inner := newTestBroker(projectGrants())
	prompter := &scriptedPrompter{interactive: true, answers: []string{"y"}}
	store := &memoryStore{}
	b := policy.NewPromptingBroker(inner, prompter, policy.WithGrantStore(store))

	req := entities.NewRequest(entities.CapabilityRead, "/data/in.csv", "readFile")
	d := b.Decide(req)
	require.True(t, d.Allowed())
	assert.Equal(t, "/data/in.csv", d.Path())

	// Second identical request is decided by the grant, not a new prompt.
	assert.True(t, b.Decide(req).Allowed())
	assert.Len(t, prompter.requests, 1)
	assert.Equal(t, 0, store.saves)

	assert.Equal(t, entities.CapabilityRead, prompter.requests[0].Capability)
	assert.Equal(t, []string{"/data/in.csv"}, prompter.requests[0].Rule.Read)
	assert.Contains(t, prompter.requests[0].Description, "read access to /data/in.csv")
}

func TestPromptingBroker_AlwaysPersists(t *testing.T) {
	inner := newTestBroker(projectGrants())
	prompter := &scriptedPrompter{interactive: true, answers: []string{"always"}}
	store := &memoryStore{}
	b := policy.NewPromptingBroker(inner, prompter, policy.WithGrantStore(store))

	req := entities.NewRequest(entities.CapabilityWrite, "/project/report.txt", "writeFile")
	require.True(t, b.Decide(req).Allowed())
	assert.Equal(t, 1, store.saves)
	require.NotNil(t, store.grants.FS)
	assert.Equal(t, []string{"/project/report.txt"}, store.grants.FS.Rules[0].Write)
}

func TestPromptingBroker_StoreErrorReported(t *testing.T) {
	var reported error
	store := &memoryStore{saveErr: errors.New("disk full")}
	b := policy.NewPromptingBroker(
		newTestBroker(nil),
		&scriptedPrompter{interactive: true, answers: []string{"always"}},
		policy.WithGrantStore(store),
		policy.WithStoreErrorHandler(func(err error) { reported = err }),
	)

	assert.True(t, b.Decide(entities.NewRequest(entities.CapabilityRead, "/a", "readFile")).Allowed())
	require.Error(t, reported)
	assert.Contains(t, reported.Error(), "disk full")
}

func TestPromptingBroker_DeclinedOrNonInteractive(t *testing.T) {
	req := entities.NewRequest(entities.CapabilityRead, "/secret", "readFile")

	declined := &scriptedPrompter{interactive: true, answers: []string{"n"}}
	b := policy.NewPromptingBroker(newTestBroker(nil), declined)
	d := b.Decide(req)
	assert.False(t, d.Allowed())
	assert.Equal(t, policy.ReasonPathNotPermitted, d.Reason())

	failing := &scriptedPrompter{interactive: true, err: errors.New("eof")}
	assert.False(t, policy.NewPromptingBroker(newTestBroker(nil), failing).Decide(req).Allowed())

	silent := &scriptedPrompter{interactive: false}
	assert.False(t, policy.NewPromptingBroker(newTestBroker(nil), silent).Decide(req).Allowed())
	assert.Empty(t, silent.requests)
}

func TestPromptingBroker_NeverPromptsForNonPathDenials(t *testing.T) {
	prompter := &scriptedPrompter{interactive: true, answers: []string{"always", "always", "always"}}
	g := &entities.GrantSet{Deny: []entities.Capability{entities.CapabilityWrite}}
	b := policy.NewPromptingBroker(newTestBroker(g), prompter)

	assert.False(t, b.Decide(entities.NewRequest(entities.CapabilityWrite, "/a", "writeFile")).Allowed())
	assert.False(t, b.Decide(entities.NewRequest(entities.CapabilityRead, "", "readFile")).Allowed())
	assert.False(t, b.Decide(entities.NewBlindRequest(entities.CapabilityReadBlind, "/a", "CWD", "cwd")).Allowed())
	assert.False(t, b.Decide(entities.NewCategoryRequest(entities.CapabilityReadAll, "glob")).Allowed())
	assert.Empty(t, prompter.requests)
}
