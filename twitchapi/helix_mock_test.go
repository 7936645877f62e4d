package twitchapi_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/streambot/credentials"
	"github.com/onnwee/streambot/testutil"
	"github.com/onnwee/streambot/twitchapi"
)

type snapshotCreds struct{}

func (snapshotCreds) Snapshot() credentials.Credentials {
	return credentials.Credentials{
		ClientID:      "cid",
		OAuthToken:    "token",
		BotUserID:     "100",
		ChannelUserID: "200",
	}
}

func mockClient(t *testing.T) (*twitchapi.Client, *testutil.MockTwitchServer) {
	t.Helper()
	mock := testutil.NewMockTwitchServer(t)
	return &twitchapi.Client{
		Creds:    snapshotCreds{},
		AuthURL:  mock.URL,
		HelixURL: mock.URL + "/helix",
	}, mock
}

func TestCreateChatSubscriptionAgainstMockServer(t *testing.T) {
	client, mock := mockClient(t)
	mock.MockSubscriptionResponse("sub-abc")

	id, err := client.CreateChatSubscription(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sub-abc", id)
}

func TestSendChatMessageAgainstMockServer(t *testing.T) {
	client, mock := mockClient(t)
	mock.MockSendMessageResponse("msg-1", true, "")

	res, err := client.SendChatMessage(context.Background(), "hello chat")
	require.NoError(t, err)
	assert.True(t, res.IsSent)
	assert.Equal(t, "msg-1", res.MessageID)
}

func TestSendChatMessageDroppedByProvider(t *testing.T) {
	client, mock := mockClient(t)
	mock.MockSendMessageResponse("", false, "automod_held")

	res, err := client.SendChatMessage(context.Background(), "spicy take")
	require.NoError(t, err)
	assert.False(t, res.IsSent)
	assert.Equal(t, "automod_held", res.DropReason)
}
