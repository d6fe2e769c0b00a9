package handlers

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"memegen-bot/internal/args"
)

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in      string
		command string
		rest    string
		ok      bool
	}{
		{"/meme drake a b", "meme", "drake a b", true},
		{"/meme@some_bot drake", "meme", "drake", true},
		{"/refresh", "refresh", "", true},
		{"  /memes  ", "memes", "", true},
		{"plain text", "", "", false},
		{"/", "", "", false},
		{"", "", "", false},
	}

	for _, tc := range cases {
		command, rest, ok := splitCommand(tc.in)
		require.Equal(t, tc.ok, ok, "input %q", tc.in)
		require.Equal(t, tc.command, command, "input %q", tc.in)
		require.Equal(t, tc.rest, rest, "input %q", tc.in)
	}
}

func TestSplitQuery(t *testing.T) {
	query, body := splitQuery("drake hello world")
	require.Equal(t, "drake", query)
	require.Equal(t, "hello world", body)

	query, body = splitQuery("drake")
	require.Equal(t, "drake", query)
	require.Empty(t, body)

	query, body = splitQuery("")
	require.Empty(t, query)
	require.Empty(t, body)
}

func TestCommandNodesMentionSplit(t *testing.T) {
	// Full message "/meme petpet hi @Ann bye" with a text_mention
	// entity over "@Ann"; offsets count UTF-16 units of the full text.
	body := "hi @Ann bye"
	bodyOffset := utf16Len("/meme petpet ")

	nodes := commandNodes(body, bodyOffset, []tgbotapi.MessageEntity{
		{Type: "text_mention", Offset: 16, Length: 4, User: &tgbotapi.User{ID: 777}},
		{Type: "bot_command", Offset: 0, Length: 5},
	})

	require.Equal(t, []args.Node{
		args.Text("hi "),
		args.Mention{UserID: 777},
		args.Text(" bye"),
	}, nodes)
}

func TestCommandNodesNoEntities(t *testing.T) {
	nodes := commandNodes("just words", 0, nil)
	require.Equal(t, []args.Node{args.Text("just words")}, nodes)
}

func TestCommandNodesMentionOnly(t *testing.T) {
	nodes := commandNodes("@Bob", 10, []tgbotapi.MessageEntity{
		{Type: "text_mention", Offset: 10, Length: 4, User: &tgbotapi.User{ID: 5}},
	})
	require.Equal(t, []args.Node{args.Mention{UserID: 5}}, nodes)
}

func TestRangeLabel(t *testing.T) {
	require.Equal(t, "any", rangeLabel(0, 0))
	require.Equal(t, "2 or more", rangeLabel(2, 0))
	require.Equal(t, "exactly 1", rangeLabel(1, 1))
	require.Equal(t, "1 to 4", rangeLabel(1, 4))
}
