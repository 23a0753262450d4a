package service

import (
	"encoding/json"

	"github.com/go-errors/errors"
	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/lmdsp/crashpad/common/data/base"
	"github.com/lmdsp/crashpad/common/database"
	"github.com/lmdsp/crashpad/common/task"
)

type publisher interface {
	publish(body []byte) error
}

type rabbitPublisher struct {
	connection *amqp.Connection
	channel    *amqp.Channel
	queue      amqp.Queue
}

func (r *rabbitPublisher) publish(body []byte) error {
	return r.channel.Publish("",
		r.queue.Name,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "text/json",
			Body:         body,
		})
}

// RabbitNotifier hands finished reports to the upload worker over a durable
// queue. A cache of already enqueued ids keeps restarts from publishing the
// same report twice.
type RabbitNotifier struct {
	pub   publisher
	cache base.Cache
}

func NewRabbitNotifier(server, queueName string, cache base.Cache) (*RabbitNotifier, error) {
	conn, err := amqp.Dial(server)
	if err != nil {
		return nil, errors.WrapPrefix(err, "connect to rabbit", 0)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.WrapPrefix(err, "open channel", 0)
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, errors.WrapPrefix(err, "declare queue", 0)
	}

	if cache == nil {
		cache = base.NewMemory()
	}

	return &RabbitNotifier{
		pub: &rabbitPublisher{
			connection: conn,
			channel:    ch,
			queue:      q,
		},
		cache: cache,
	}, nil
}

// ReportPending enqueues one finished report. Fire and forget: a publish
// failure is logged, never propagated into the capture pipeline.
func (n *RabbitNotifier) ReportPending(id uuid.UUID) {
	key := id.String()
	if _, err := n.cache.Get(key); err == nil {
		log.WithField("report", key).Debug("Report already enqueued")
		return
	}

	t := task.CreatePendingReportTask(key, "")
	msg, err := json.Marshal(t)
	if err != nil {
		log.WithError(err).Error("Can't serialize pending report task")
		return
	}

	if err := n.pub.publish(msg); err != nil {
		log.WithError(err).WithField("report", key).
			Error("Can't enqueue pending report")
		return
	}

	if err := n.cache.Set(key, t.Time); err != nil {
		log.WithError(err).Warning("Can't remember enqueued report")
	}
}

// RequeuePending re-enqueues committed reports that were never handed off,
// e.g. after a handler restart between commit and publish.
func (n *RabbitNotifier) RequeuePending(db database.CrashReportDatabase) {
	reports, status := db.GetCompletedReports()
	if status != database.NoError {
		log.WithField("status", status.String()).
			Error("Can't list reports for requeue")
		return
	}

	for _, report := range reports {
		n.ReportPending(report.Id)
	}
}
