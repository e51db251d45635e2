package realtime

import (
	"testing"

	"github.com/matryer/is"
)

func TestNatsSnapshotPublisher_Subject(t *testing.T) {
	is := is.New(t)
	publisher := newNatsSnapshotPublisher(nil, "ontime.snapshot")
	is.Equal(publisher.subjectFor("SF"), "ontime.snapshot.SF")
	is.Equal(publisher.subjectFor("AC"), "ontime.snapshot.AC")
}
