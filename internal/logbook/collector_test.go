package logbook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type CollectorTestSuite struct {
	suite.Suite
}

func (s *CollectorTestSuite) waitForState(c *Collector, want uint32) {
	s.Eventually(func() bool { return c.State() == want }, time.Second, time.Millisecond,
		"collector MUST reach state %d", want)
}

func (s *CollectorTestSuite) TestNewCollectorValidation() {
	// GOAL: Verify constructor arguments are validated
	//
	// TEST SCENARIO: nil feed, zero size, oversized buffer → errors; valid args → collector
	feed := make(chan Entry)

	_, err := NewCollector(nil, 8, nil)
	s.ErrorContains(err, "feed cannot be nil")

	_, err = NewCollector(feed, 0, nil)
	s.ErrorContains(err, "must be > 0")

	_, err = NewCollector(feed, MaxCollectorSize+1, nil)
	s.ErrorContains(err, "exceeds maximum")

	c, err := NewCollector(feed, 8, nil)
	s.Require().NoError(err)
	s.Equal(CollectorStateNotRunning, c.State())
}

func (s *CollectorTestSuite) TestCollectsBookEntriesInOrder() {
	// GOAL: Verify entries appended to a book reach the consumer in append order
	//
	// TEST SCENARIO: subscribe → collect → append three entries → stop → drain
	book := NewBook()
	feed, cancel := book.Subscribe(16)
	defer cancel()

	c, err := NewCollector(feed.C(), 16, nil)
	s.Require().NoError(err)
	s.Require().NoError(c.Start())
	s.waitForState(c, CollectorStateRunning)

	book.Append(Info("Start scanning", ""))
	book.Append(Info("Discovered", "Thermo"))
	book.Append(Highlight("hi", "2a19"))

	s.Eventually(func() bool { return c.Metrics().EntriesCollected == 3 }, time.Second, time.Millisecond)
	s.Require().NoError(c.Stop())

	entries, err := c.Drain()
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal([]uint64{1, 2, 3}, []uint64{entries[0].ID, entries[1].ID, entries[2].ID}, "order MUST be preserved")
	s.True(entries[2].IsHighlighted)

	again, err := c.Drain()
	s.Require().NoError(err)
	s.Empty(again, "drained entries MUST NOT be returned twice")
}

func (s *CollectorTestSuite) TestStopsWhenFeedCloses() {
	// GOAL: Verify the collector exits on its own when the feed is closed
	//
	// TEST SCENARIO: start → send one entry → close feed → Done closes → entry still drainable
	feed := make(chan Entry, 1)
	c, err := NewCollector(feed, 16, nil)
	s.Require().NoError(err)
	s.Require().NoError(c.Start())

	feed <- Error("Scan timeout", "")
	close(feed)

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		s.FailNow("collector MUST stop when its feed closes")
	}
	s.waitForState(c, CollectorStateNotRunning)
	s.NoError(c.Stop(), "stopping a finished collector MUST be a no-op")

	entries, err := c.Drain()
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.True(entries[0].IsError)
}

func (s *CollectorTestSuite) TestDoubleStartRejected() {
	feed := make(chan Entry)
	c, err := NewCollector(feed, 16, nil)
	s.Require().NoError(err)
	s.Require().NoError(c.Start())
	defer func() { s.NoError(c.Stop()) }()
	s.waitForState(c, CollectorStateRunning)

	s.ErrorContains(c.Start(), "already running")
}

func (s *CollectorTestSuite) TestConsumerStopsEarly() {
	// GOAL: Verify a consumer can end consumption with a non-zero result
	//
	// TEST SCENARIO: collect entries → consumer returns the first error entry text
	feed := make(chan Entry, 4)
	c, err := NewCollector(feed, 16, nil)
	s.Require().NoError(err)
	s.Require().NoError(c.Start())

	feed <- Info("Connecting", "")
	feed <- Error("Service not found", "")
	feed <- Info("Disconnected", "")
	close(feed)
	<-c.Done()

	firstError, err := ConsumeEntries(c, func(e *Entry) (string, error) {
		if e != nil && e.IsError {
			return e.Text, nil
		}
		return "", nil
	})
	s.Require().NoError(err)
	s.Equal("Service not found", firstError)

	rest, err := c.Drain()
	s.Require().NoError(err)
	s.Len(rest, 1, "entries after the early stop MUST remain buffered")
}

func TestCollectorTestSuite(t *testing.T) {
	suite.Run(t, new(CollectorTestSuite))
}
