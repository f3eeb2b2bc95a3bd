package eventhub

import (
	"context"
	"fmt"

	"svnscm/internal/operation"
	"svnscm/internal/outputlog"
	"svnscm/internal/repository"
	"svnscm/internal/scm"
)

// ManagerSource answers client actions from an scm.Manager.
type ManagerSource struct {
	Manager *scm.Manager
}

func (s ManagerSource) Models() []repository.Model {
	ctrls := s.Manager.Repositories()
	models := make([]repository.Model, 0, len(ctrls))
	for _, c := range ctrls {
		models = append(models, c.Snapshot())
	}
	return models
}

func (s ManagerSource) Refresh(ctx context.Context, root string) error {
	ctrl := s.Manager.RepositoryByRoot(root)
	if ctrl == nil {
		return fmt.Errorf("refresh %s: no open working copy", root)
	}
	return ctrl.Status(ctx)
}

type eventPayload struct {
	RunID     string           `json:"runId,omitempty"`
	Operation operation.Kind   `json:"operation,omitempty"`
	State     repository.State `json:"state,omitempty"`
	Count     int              `json:"count"`
	Error     string           `json:"error,omitempty"`
}

// Publisher is the frame sink Forward writes to. *Hub implements it.
type Publisher interface {
	Publish(typ, repositoryRoot string, payload any)
}

// Forward publishes every manager event. Model-changing events carry the
// new model; the others carry the event fields.
func Forward(p Publisher, m *scm.Manager) (cancel func()) {
	return m.Subscribe(func(ev scm.Event) {
		if ev.Kind != scm.EventRepository {
			p.Publish(string(ev.Kind), ev.Root, nil)
			return
		}

		rev := ev.Repository
		switch rev.Kind {
		case repository.EventStatusChanged, repository.EventRemoteChangesChanged, repository.EventGroupsRecreated:
			if ctrl := m.RepositoryByRoot(ev.Root); ctrl != nil {
				p.Publish(string(rev.Kind), ev.Root, ctrl.Snapshot())
				return
			}
		}
		payload := eventPayload{
			RunID:     rev.RunID,
			Operation: rev.Operation,
			State:     rev.State,
			Count:     rev.Count,
		}
		if rev.Err != nil {
			payload.Error = rev.Err.Error()
		}
		p.Publish(string(rev.Kind), ev.Root, payload)
	})
}

type outputPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Attrs   string `json:"attrs,omitempty"`
	Text    string `json:"text"`
}

// OutputSink publishes teed svn output lines as output frames.
func OutputSink(p Publisher) outputlog.Sink {
	return func(l outputlog.Line) {
		p.Publish(TypeOutput, "", outputPayload{
			Level:   l.Level.String(),
			Message: l.Message,
			Attrs:   l.Attrs,
			Text:    l.String(),
		})
	}
}
