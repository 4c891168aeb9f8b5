package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-status-hub/internal/domain"
	"go-status-hub/internal/infrastructure/logger"
)

var testService = domain.Service{
	ID:        "svc-1",
	Name:      "API <edge>",
	Status:    domain.StatusMajorOutage,
	UpdatedAt: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
}

type stubSender struct {
	err   error
	calls int
}

func (s *stubSender) NotifyStatusChange(context.Context, domain.Service, domain.ServiceStatus, domain.ServiceStatus) error {
	s.calls++
	return s.err
}

type recordingWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	cfg := logger.NewDefaultConfig()
	cfg.Format = "json"
	log := logger.NewLogrusLogger(cfg)
	log.SetOutput(&buf)

	err := NewLogSender(log).NotifyStatusChange(context.Background(), testService, domain.StatusOperational, domain.StatusMajorOutage)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "svc-1", entry["service_id"])
	assert.Equal(t, "operational", entry["old_status"])
	assert.Equal(t, "major_outage", entry["new_status"])
}

func TestMulti_TriesEverySender(t *testing.T) {
	failing := &stubSender{err: errors.New("smtp down")}
	ok := &stubSender{}
	w := &recordingWriter{}

	m := Multi{failing, ok, NewKafkaSenderWithWriter(w)}
	err := m.NotifyStatusChange(context.Background(), testService, domain.StatusOperational, domain.StatusMajorOutage)

	assert.ErrorContains(t, err, "smtp down")
	assert.Equal(t, 1, ok.calls)
	assert.Len(t, w.msgs, 1)

	require.NoError(t, m.Close())
	assert.True(t, w.closed)
}

func TestSMTPSender_Message(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  []byte
	)
	s := NewSMTPSender(SMTPConfig{
		Host:       "mail.example.com",
		Port:       587,
		From:       "status@example.com",
		Recipients: []string{"ops@example.com", "oncall@example.com"},
	})
	s.now = func() time.Time { return testService.UpdatedAt }
	s.sendMail = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, msg
		return nil
	}

	err := s.NotifyStatusChange(context.Background(), testService, domain.StatusOperational, domain.StatusMajorOutage)
	require.NoError(t, err)

	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, []string{"ops@example.com", "oncall@example.com"}, gotTo)
	body := string(gotMsg)
	assert.Contains(t, body, "Subject: Status Change Alert: API <edge>\r\n")
	assert.Contains(t, body, "Previous Status: operational")
	assert.Contains(t, body, "New Status: major_outage")
	assert.Contains(t, body, "API &lt;edge&gt;", "service name is escaped in the html body")
}

func TestSMTPSender_SubjectCannotCarryHeaders(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{From: "status@example.com", Recipients: []string{"ops@example.com"}})
	s.now = func() time.Time { return testService.UpdatedAt }

	svc := testService
	svc.Name = "api\r\nBcc: attacker@evil.example"
	msg, err := s.message(svc, domain.StatusOperational, domain.StatusMajorOutage)
	require.NoError(t, err)

	head, _, found := strings.Cut(string(msg), "\r\n\r\n")
	require.True(t, found)
	lines := strings.Split(head, "\r\n")
	require.Len(t, lines, 5)
	for _, line := range lines {
		assert.False(t, strings.HasPrefix(line, "Bcc:"), "unexpected header %q", line)
	}
	assert.True(t, strings.HasPrefix(lines[2], "Subject: =?utf-8?q?"), lines[2])

	subject, err := new(mime.WordDecoder).DecodeHeader(strings.TrimPrefix(lines[2], "Subject: "))
	require.NoError(t, err)
	assert.Equal(t, "Status Change Alert: "+svc.Name, subject)
}

func TestSMTPSender_ContextEnds(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	s := NewSMTPSender(SMTPConfig{Host: "mail.example.com", Port: 25, From: "a@b", Recipients: []string{"c@d"}})
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		<-block
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.NotifyStatusChange(ctx, testService, domain.StatusOperational, domain.StatusMajorOutage)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKafkaSender(t *testing.T) {
	assert.Nil(t, NewKafkaSender(nil, "topic"))
	assert.Nil(t, NewKafkaSender([]string{"localhost:9092"}, ""))

	w := &recordingWriter{}
	k := NewKafkaSenderWithWriter(w)
	require.NoError(t, k.NotifyStatusChange(context.Background(), testService, domain.StatusOperational, domain.StatusMajorOutage))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "svc-1", string(w.msgs[0].Key))

	var rec StatusChange
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &rec))
	assert.Equal(t, StatusChange{
		ServiceID:   "svc-1",
		ServiceName: "API <edge>",
		OldStatus:   domain.StatusOperational,
		NewStatus:   domain.StatusMajorOutage,
		ChangedAt:   testService.UpdatedAt,
	}, rec)
}
