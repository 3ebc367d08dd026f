package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"support-console/internal/models"
	"support-console/internal/observability"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrMissingFile  = errors.New("file url and name are required")
)

// Sender forwards an optimistic message to the transport. A returned error means
// the platform never received it.
type Sender interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

// Notifier surfaces send failures to the admin.
type Notifier interface {
	NotifyError(conversationID string, err error)
}

// Reconciler gives the admin immediate feedback on sends. The temporary message it
// inserts is replaced by the server echo (Store.ApplyIncoming) or removed when the
// transport reports failure.
type Reconciler struct {
	store    *Store
	sender   Sender
	notifier Notifier
	seq      atomic.Uint64
}

// NewReconciler constructs a Reconciler.
func NewReconciler(store *Store, sender Sender, notifier Notifier) *Reconciler {
	return &Reconciler{store: store, sender: sender, notifier: notifier}
}

// Send posts a text message to the active conversation.
func (r *Reconciler) Send(ctx context.Context, text string) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	return r.send(ctx, models.Message{
		Message:     text,
		MessageType: models.MessageText,
	})
}

// SendFile posts an already uploaded file with an optional caption.
func (r *Reconciler) SendFile(ctx context.Context, fileURL, fileName, caption string) (models.Message, error) {
	if strings.TrimSpace(fileURL) == "" || strings.TrimSpace(fileName) == "" {
		return models.Message{}, ErrMissingFile
	}
	return r.send(ctx, models.Message{
		Message:     caption,
		MessageType: models.MessageFile,
		FileURL:     fileURL,
		FileName:    fileName,
	})
}

func (r *Reconciler) send(ctx context.Context, draft models.Message) (models.Message, error) {
	draft.ID = r.tempID()
	draft.ClientMessageID = uuid.NewString()
	draft.SenderType = models.SenderAdmin
	draft.IsRead = true

	temp, err := r.store.AddPending(draft)
	if err != nil {
		return models.Message{}, err
	}

	if err := r.sender.SendMessage(ctx, temp); err != nil {
		r.store.RemovePending(temp.ID)
		observability.IncSendFailure()
		err = fmt.Errorf("send message: %w", err)
		if r.notifier != nil {
			r.notifier.NotifyError(temp.ConversationID, err)
		}
		return temp, err
	}
	return temp, nil
}

func (r *Reconciler) tempID() string {
	n := r.seq.Add(1)
	return models.TempIDPrefix + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + strconv.FormatUint(n, 10)
}
