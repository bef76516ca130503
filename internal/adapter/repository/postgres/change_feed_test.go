package postgres

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/ledgersync/internal/domain"
)

func TestChangeFeedDispatch(t *testing.T) {
	feed := NewChangeFeed(nil, zerolog.Nop())
	ctx := context.Background()

	var (
		mine, all, settings []domain.ChangeEvent
	)
	stopMine, err := feed.Subscribe(ctx, domain.CollectionEntries, "acct-1", func(ev domain.ChangeEvent) { mine = append(mine, ev) })
	require.NoError(t, err)
	_, err = feed.Subscribe(ctx, domain.CollectionEntries, "", func(ev domain.ChangeEvent) { all = append(all, ev) })
	require.NoError(t, err)
	_, err = feed.Subscribe(ctx, domain.CollectionSettings, "", func(ev domain.ChangeEvent) { settings = append(settings, ev) })
	require.NoError(t, err)

	feed.dispatch(`{"collection":"entries","op":"insert","id":"e-1","account_id":"acct-1","record":{"id":"e-1","account_id":"acct-1"}}`)
	feed.dispatch(`{"collection":"entries","op":"delete","id":"e-2","account_id":"acct-2","record":null}`)
	feed.dispatch(`{"collection":"settings","op":"update","id":"daily_limit","account_id":null,"record":{"key":"daily_limit","value":"5"}}`)
	feed.dispatch(`not json`)

	require.Len(t, mine, 1)
	assert.Equal(t, "e-1", mine[0].ID)
	assert.Equal(t, domain.ChangeInsert, mine[0].Op)
	assert.JSONEq(t, `{"id":"e-1","account_id":"acct-1"}`, string(mine[0].Record))

	assert.Len(t, all, 2)
	require.Len(t, settings, 1)
	assert.Equal(t, "daily_limit", settings[0].ID)

	stopMine()
	stopMine()
	feed.dispatch(`{"collection":"entries","op":"update","id":"e-1","account_id":"acct-1"}`)
	assert.Len(t, mine, 1)
	assert.Len(t, all, 3)
}
