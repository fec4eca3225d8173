package sender

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailcraft/internal/config"
	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/logger"
)

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

type fakeResend struct {
	req *resend.SendEmailRequest
	err error
}

func (f *fakeResend) SendWithContext(_ context.Context, p *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	f.req = p
	if f.err != nil {
		return nil, f.err
	}
	return &resend.SendEmailResponse{Id: "rs-1"}, nil
}

func testMessage() *domain.EmailMessage {
	return &domain.EmailMessage{
		To: "ada@example.com", FromName: "Acme", FromEmail: "news@acme.test", ReplyTo: "help@acme.test",
		Subject: "Hi", HTML: "<p>Hi</p>", Text: "Hi",
		Headers: map[string]string{"List-Unsubscribe-Post": "List-Unsubscribe=One-Click", "List-Unsubscribe": "<https://t/u>"},
		Tags:    map[string]string{"scope": "campaign", "scope_id": "c1"},
	}
}

func TestSESSend(t *testing.T) {
	logger.Discard()
	api := &fakeSES{}
	s := NewSESSenderWithClient(api, "tracking-set")

	res, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "ses-1", res.MessageID)
	assert.Equal(t, "ses", res.Provider)

	in := api.in
	assert.Equal(t, "Acme <news@acme.test>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"ada@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, []string{"help@acme.test"}, in.ReplyToAddresses)
	assert.Equal(t, "tracking-set", aws.ToString(in.ConfigurationSetName))
	assert.Equal(t, "Hi", aws.ToString(in.Content.Simple.Body.Text.Data))
	require.Len(t, in.Content.Simple.Headers, 2)
	assert.Equal(t, "List-Unsubscribe", aws.ToString(in.Content.Simple.Headers[0].Name))
	require.Len(t, in.EmailTags, 2)
	assert.Equal(t, "scope", aws.ToString(in.EmailTags[0].Name))
}

func TestSESRejectionIsPermanent(t *testing.T) {
	logger.Discard()
	s := NewSESSenderWithClient(&fakeSES{err: &types.MessageRejected{Message: aws.String("bad address")}}, "")
	_, err := s.Send(context.Background(), testMessage())
	assert.ErrorIs(t, err, ErrPermanent)

	s = NewSESSenderWithClient(&fakeSES{err: errors.New("throttled")}, "")
	_, err = s.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPermanent)
}

func TestResendSend(t *testing.T) {
	logger.Discard()
	api := &fakeResend{}
	s := &ResendSender{emails: api, from: "default@acme.test", now: time.Now}

	res, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "rs-1", res.MessageID)
	assert.Equal(t, "Acme <news@acme.test>", api.req.From)
	assert.Equal(t, []string{"ada@example.com"}, api.req.To)
	assert.Equal(t, []resend.Tag{{Name: "scope", Value: "campaign"}, {Name: "scope_id", Value: "c1"}}, api.req.Tags)

	msg := testMessage()
	msg.FromEmail = ""
	_, err = s.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "default@acme.test", api.req.From)
}

func TestLogSenderRecords(t *testing.T) {
	logger.Discard()
	s := NewLogSender()
	_, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Len(t, s.Sent(), 1)
}

func TestNewFactory(t *testing.T) {
	s, err := New(context.Background(), config.SendingConfig{Provider: "log"})
	require.NoError(t, err)
	assert.Equal(t, "log", s.Name())

	_, err = New(context.Background(), config.SendingConfig{Provider: "resend"})
	assert.Error(t, err)

	_, err = New(context.Background(), config.SendingConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}
