package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/OpenTransitTools/ontime/business/snapshot"
	"github.com/nats-io/nats.go"
)

// snapshotPublisher is where snapshots are sent after each successful pass
type snapshotPublisher interface {
	Publish(s *snapshot.Snapshot) error
}

// natsSnapshotPublisher sends snapshots over nats on <subject>.<agencyId>
type natsSnapshotPublisher struct {
	natsConn *nats.Conn
	subject  string
}

// newNatsSnapshotPublisher creates a publisher sending snapshots on natsConn
func newNatsSnapshotPublisher(natsConn *nats.Conn, subject string) *natsSnapshotPublisher {
	return &natsSnapshotPublisher{natsConn: natsConn, subject: subject}
}

func (n *natsSnapshotPublisher) subjectFor(agencyId string) string {
	return fmt.Sprintf("%s.%s", n.subject, agencyId)
}

func (n *natsSnapshotPublisher) Publish(s *snapshot.Snapshot) error {
	jsonData, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("error marshaling snapshot to json: %w", err)
	}
	return n.natsConn.Publish(n.subjectFor(s.AgencyId), jsonData)
}
