// Package notifier implements ControlPlaneNotifier: an optional,
// best-effort HTTP callback that reports tunnel lifecycle events to an
// external control plane, plus a supplemental SNS fan-out.
package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/op/go-logging"
)

// Event mirrors the JSON bodies posted to the control plane.
type Event struct {
	Type   string `json:"type"`
	ConnID string `json:"conn_id"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
	Port   uint16 `json:"port"`
}

const (
	EventNewConnection      = "NewConnection"
	EventShutdownConnection = "ShutdownConnection"
)

// SNSPublisher is the subset of the AWS SNS client this package needs,
// so tests can substitute a fake without pulling in network access. The
// production implementation wraps *sns.SNS from aws-sdk-go.
type SNSPublisher interface {
	Publish(topicARN, message string) error
}

// Notifier posts lifecycle JSON to an optional HTTP callback URL and,
// if configured, additionally fans the same payload out to an SNS
// topic. Both sends are best-effort: failures are logged and never abort
// the Session. Sends are synchronous, not run in the background: each
// Notify call returns only after the POST and/or SNS publish completes.
type Notifier struct {
	callbackURL string
	snsTopicARN string
	sns         SNSPublisher
	httpClient  *http.Client
	log         *logging.Logger

	mu          sync.Mutex
	notifiedNew bool
}

// New builds a Notifier. callbackURL may be empty (notifications
// disabled). snsTopicARN/sns may both be zero-valued to disable the SNS
// fan-out.
func New(callbackURL, snsTopicARN string, sns SNSPublisher, log *logging.Logger) *Notifier {
	return &Notifier{
		callbackURL: callbackURL,
		snsTopicARN: snsTopicARN,
		sns:         sns,
		httpClient:  &http.Client{},
		log:         log,
	}
}

// Enabled reports whether any callback is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && (n.callbackURL != "" || n.snsTopicARN != "")
}

// NotifyNewConnection posts the NewConnection lifecycle event after a
// successful handshake and external-port bind. If the POST fails, the
// shutdown notification for this connection is disabled: the caller
// should not bother scheduling a Shutdown guard in that case. Returns
// whether the notification succeeded.
func (n *Notifier) NotifyNewConnection(ev Event) (succeeded bool) {
	if n == nil || !n.Enabled() {
		return false
	}
	ev.Type = EventNewConnection
	ok := n.post(ev)
	n.mu.Lock()
	n.notifiedNew = ok
	n.mu.Unlock()
	return ok
}

// NotifyShutdown posts the ShutdownConnection lifecycle event, but only
// if the initial NewConnection notification succeeded. Intended to be
// called from a scoped resource-release guard so it fires on every
// Session exit path.
func (n *Notifier) NotifyShutdown(ev Event) {
	if n == nil || !n.Enabled() {
		return
	}
	n.mu.Lock()
	shouldNotify := n.notifiedNew
	n.mu.Unlock()
	if !shouldNotify {
		return
	}
	ev.Type = EventShutdownConnection
	n.post(ev)
}

func (n *Notifier) post(ev Event) bool {
	body, err := json.Marshal(ev)
	if err != nil {
		n.logError("marshal", err)
		return false
	}

	ok := true
	if n.callbackURL != "" {
		if err := n.postHTTP(body); err != nil {
			n.logError("http post", err)
			ok = false
		}
	}
	if n.snsTopicARN != "" && n.sns != nil {
		if err := n.sns.Publish(n.snsTopicARN, string(body)); err != nil {
			n.logError("sns publish", err)
			ok = false
		}
	}
	return ok
}

func (n *Notifier) postHTTP(body []byte) error {
	resp, err := n.httpClient.Post(n.callbackURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("control plane callback returned status %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) logError(step string, err error) {
	if n.log != nil {
		n.log.Error("control plane notify (", step, ") failed: ", err)
	}
}
