package alert

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var hotLead = LeadAlert{
	LeadID:      "lead-1",
	Email:       "sam@example.com",
	FirstName:   "Sam",
	Score:       82,
	Segment:     "HOT",
	Bottleneck:  "TRAINING",
	Confidence:  "HIGH",
	StartTiming: "This Week",
	Budget:      "£600+",
}

type mockDiscord struct {
	mock.Mock
}

func (m *mockDiscord) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	args := m.Called(channelID, embed)
	msg, _ := args.Get(0).(*discordgo.Message)
	return msg, args.Error(1)
}

type mockSNS struct {
	mock.Mock
}

func (m *mockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*sns.PublishOutput)
	return out, args.Error(1)
}

func TestDiscordAlerterSendsEmbed(t *testing.T) {
	session := &mockDiscord{}
	session.On("ChannelMessageSendEmbed", "chan-1", mock.MatchedBy(func(e *discordgo.MessageEmbed) bool {
		return e.Title == "HOT lead: Sam" && e.Color == hotLeadColor && len(e.Fields) == 6 && e.Fields[0].Value == "82"
	})).Return(&discordgo.Message{ID: "m-1"}, nil)

	alerter := &DiscordAlerter{session: session, channelID: "chan-1"}
	require.NoError(t, alerter.Alert(context.Background(), hotLead))
	session.AssertExpectations(t)
}

func TestDiscordAlerterWrapsErrors(t *testing.T) {
	session := &mockDiscord{}
	session.On("ChannelMessageSendEmbed", "chan-1", mock.Anything).Return(nil, errors.New("rate limited"))

	alerter := &DiscordAlerter{session: session, channelID: "chan-1"}
	err := alerter.Alert(context.Background(), hotLead)
	require.ErrorContains(t, err, "discord alert: rate limited")
}

func TestSMSAlerterPublishesSummary(t *testing.T) {
	client := &mockSNS{}
	client.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return *in.PhoneNumber == "+447700900123" &&
			*in.Message == "HOT lead: Sam (sam@example.com) scored 82. Bottleneck TRAINING (HIGH confidence). Start: This Week, budget: £600+."
	})).Return(&sns.PublishOutput{}, nil)

	require.NoError(t, NewSMSAlerter(client, "+447700900123").Alert(context.Background(), hotLead))
	client.AssertExpectations(t)
}

type funcAlerter func(context.Context, LeadAlert) error

func (f funcAlerter) Alert(ctx context.Context, a LeadAlert) error { return f(ctx, a) }

func TestMultiDeliversToAllAndJoinsErrors(t *testing.T) {
	var calls int
	ok := funcAlerter(func(context.Context, LeadAlert) error { calls++; return nil })
	failing := funcAlerter(func(context.Context, LeadAlert) error { calls++; return errors.New("sms down") })

	err := Multi{failing, nil, ok}.Alert(context.Background(), hotLead)
	require.ErrorContains(t, err, "sms down")
	assert.Equal(t, 2, calls)

	require.NoError(t, Multi{}.Alert(context.Background(), hotLead))
}

func TestSummaryFallsBackToEmail(t *testing.T) {
	a := LeadAlert{Email: "x@example.com", Score: 70}
	assert.Contains(t, a.Summary(), "HOT lead: x@example.com (x@example.com)")
	assert.Contains(t, a.Summary(), "Start: -, budget: -.")
}
