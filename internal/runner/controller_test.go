package runner

import (
	"context"
	"errors"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/flowlab/internal/document"
)

func testDoc() *document.Document {
	return &document.Document{Metadata: document.Metadata{Title: "test"}}
}

func startController(t *testing.T, m *fakeModel) (*Controller, *eventLog) {
	t.Helper()
	g := NewWithT(t)

	log := &eventLog{}
	c := New(loaderFor(m), nil)
	g.Expect(c.AddListener(log)).To(Succeed())
	g.Expect(c.Start(context.Background(), testDoc(), "")).To(Succeed())
	g.Eventually(func() State { return c.Status().State }).Should(Equal(StatePaused))
	t.Cleanup(func() {
		_ = c.Kill()
		<-c.Done()
	})
	return c, log
}

// checkSession asserts what every finished session must satisfy.
func checkSession(g *WithT, log *eventLog, lastIndex int) {
	events := log.all()
	g.Expect(events).NotTo(BeEmpty())
	g.Expect(events[len(events)-1].Kind).To(Equal(EventFinished))
	g.Expect(log.count(EventFinished)).To(Equal(1))

	prev := -1
	for _, idx := range log.indices() {
		g.Expect(idx).To(BeNumerically(">", prev))
		g.Expect(idx).To(BeNumerically("<=", lastIndex))
		prev = idx
	}
}

func TestController_CommandsBeforeStart(t *testing.T) {
	g := NewWithT(t)
	c := New(loaderFor(newFakeModel(10)), nil)

	g.Expect(c.Step()).To(MatchError(ErrNotStarted))
	g.Expect(c.RunTo(day(3))).To(MatchError(ErrNotStarted))
	g.Expect(c.Run()).To(MatchError(ErrNotStarted))
	g.Expect(c.Kill()).To(MatchError(ErrNotStarted))
	g.Expect(c.Wait()).To(MatchError(ErrNotStarted))
	g.Expect(c.Status().State).To(Equal(StateIdle))
}

func TestController_StartTwice(t *testing.T) {
	g := NewWithT(t)
	c, _ := startController(t, newFakeModel(10))

	g.Expect(c.Start(context.Background(), testDoc(), "")).To(MatchError(ErrAlreadyStarted))
	g.Expect(c.AddListener(&eventLog{})).To(MatchError(ErrAlreadyStarted))
}

func TestController_StartRejectsNilArguments(t *testing.T) {
	g := NewWithT(t)
	c := New(loaderFor(newFakeModel(3)), nil)

	var noCtx context.Context
	g.Expect(c.Start(noCtx, testDoc(), "")).To(MatchError(ErrNilContext))
	g.Expect(c.Start(context.Background(), nil, "")).To(MatchError(ErrNilDocument))
	g.Expect(c.Wait()).To(MatchError(ErrNotStarted))

	g.Expect(c.Start(context.Background(), testDoc(), "")).To(Succeed())
	g.Expect(c.Run()).To(Succeed())
	g.Expect(c.Wait()).To(Succeed())
	g.Expect(c.Status().Outcome).To(Equal(OutcomeCompleted))
}

func TestController_StepEmitsOneProgress(t *testing.T) {
	g := NewWithT(t)
	m := newFakeModel(10)
	c, log := startController(t, m)

	g.Expect(c.Step()).To(Succeed())
	g.Eventually(func() int { return log.count(EventStepDone) }).Should(Equal(1))
	g.Eventually(func() State { return c.Status().State }).Should(Equal(StatePaused))

	g.Expect(log.kinds()).To(Equal([]EventKind{
		EventStatus, EventStatus,
		EventBeforeStep, EventProgress, EventStepDone,
	}))
	g.Expect(log.indices()).To(Equal([]int{1}))
	g.Expect(m.stepCount()).To(Equal(1))

	st := c.Status()
	g.Expect(st.Mode).To(Equal(ModeNone))
	g.Expect(st.Last.Index).To(Equal(1))
	g.Expect(st.Last.LastIndex).To(Equal(9))
	g.Expect(st.Last.Timestamp).To(Equal(day(1)))
}

func TestController_StepToEndThenAutoStop(t *testing.T) {
	g := NewWithT(t)
	m := newFakeModel(10)
	c, log := startController(t, m)

	for i := 1; i <= 9; i++ {
		g.Expect(c.Step()).To(Succeed())
		g.Eventually(func() int { return log.count(EventStepDone) }).Should(Equal(i))
	}
	g.Expect(log.indices()).To(Equal([]int{1, 2, 3, 4, 5, 6, 7, 8, 9}))

	g.Eventually(func() State { return c.Status().State }).Should(Equal(StatePaused))
	g.Expect(c.Step()).To(Succeed())
	g.Expect(c.Wait()).To(Succeed())

	g.Expect(m.stepCount()).To(Equal(9))
	g.Expect(m.isClosed()).To(BeTrue())
	g.Expect(log.count(EventProgress)).To(Equal(9))
	g.Expect(log.count(EventBeforeStep)).To(Equal(9))
	g.Expect(c.Status().Outcome).To(Equal(OutcomeCompleted))
	checkSession(g, log, 9)

	g.Expect(c.Step()).To(MatchError(ErrFinished))
}

func TestController_RunToDate(t *testing.T) {
	g := NewWithT(t)
	m := newFakeModel(10)
	c, log := startController(t, m)

	g.Expect(c.RunTo(day(4))).To(Succeed())
	g.Eventually(func() int { return log.count(EventRunToDateDone) }).Should(Equal(1))
	g.Expect(log.indices()).To(Equal([]int{1, 2, 3, 4}))
	g.Expect(log.count(EventBeforeRunToDate)).To(Equal(1))
	g.Expect(log.count(EventBeforeStep)).To(BeZero())

	// Already past the target: the segment completes without stepping.
	g.Eventually(func() State { return c.Status().State }).Should(Equal(StatePaused))
	g.Expect(c.RunTo(day(2))).To(Succeed())
	g.Eventually(func() int { return log.count(EventRunToDateDone) }).Should(Equal(2))
	g.Expect(m.stepCount()).To(Equal(4))
	g.Expect(log.count(EventBeforeRunToDate)).To(Equal(2))
}

func TestController_RunToLastTimestamp(t *testing.T) {
	g := NewWithT(t)
	m := newFakeModel(10)
	c, log := startController(t, m)

	g.Expect(c.RunTo(day(9))).To(Succeed())
	g.Eventually(func() int { return log.count(EventRunToDateDone) }).Should(Equal(1))
	g.Expect(log.indices()).To(Equal([]int{1, 2, 3, 4, 5, 6, 7, 8, 9}))

	g.Eventually(func() State { return c.Status().State }).Should(Equal(StatePaused))
	g.Expect(c.Step()).To(Succeed())
	g.Expect(c.Wait()).To(Succeed())

	g.Expect(m.stepCount()).To(Equal(9))
	g.Expect(log.count(EventBeforeStep)).To(BeZero())
	checkSession(g, log, 9)
}

func TestController_RunToBeyondEndStopsAtLastIndex(t *testing.T) {
	g := NewWithT(t)
	m := newFakeModel(5)
	c, log := startController(t, m)

	g.Expect(c.RunTo(day(100))).To(Succeed())
	g.Eventually(func() int { return log.count(EventRunToDateDone) }).Should(Equal(1))
	g.Expect(log.indices()).To(Equal([]int{1, 2, 3, 4}))
}

func TestController_KillDuringRunToDate(t *testing.T) {
	g := NewWithT(t)
	m := newFakeModel(100)
	m.gate = make(chan struct{})
	c, log := startController(t, m)

	g.Expect(c.RunTo(day(90))).To(Succeed())
	for i := 0; i < 3; i++ {
		m.gate <- struct{}{}
	}
	g.Expect(c.Kill()).To(Succeed())
	close(m.gate)
	g.Expect(c.Wait()).To(Succeed())

	g.Expect(log.count(EventProgress)).To(BeNumerically(">=", 3))
	g.Expect(log.count(EventProgress)).To(BeNumerically("<=", 4))
	g.Expect(m.stepCount()).To(Equal(log.count(EventProgress)))
	g.Expect(m.isClosed()).To(BeTrue())
	g.Expect(c.Status().Outcome).To(Equal(OutcomeKilled))
	g.Expect(log.count(EventStepError)).To(BeZero())
	checkSession(g, log, 99)

	events := log.all()
	g.Expect(events[len(events)-2].Kind).To(Equal(EventRunToDateDone))
}

func TestController_KillWhilePaused(t *testing.T) {
	g := NewWithT(t)
	m := newFakeModel(10)
	c, log := startController(t, m)

	g.Expect(c.Kill()).To(Succeed())
	g.Expect(c.Wait()).To(Succeed())

	g.Expect(m.isClosed()).To(BeTrue())
	g.Expect(m.stepCount()).To(BeZero())
	g.Expect(c.Status().Outcome).To(Equal(OutcomeKilled))
	g.Expect(c.Status().State).To(Equal(StateFinished))
	g.Expect(log.kinds()).To(Equal([]EventKind{EventStatus, EventStatus, EventFinished}))

	g.Expect(c.Step()).To(MatchError(ErrFinished))
	g.Expect(c.Kill()).To(MatchError(ErrFinished))
}

func TestController_LoadFailure(t *testing.T) {
	g := NewWithT(t)
	log := &eventLog{}
	c := New(LoaderFunc(func(context.Context, *document.Document, string) (Model, error) {
		return nil, errBadModel
	}), nil)
	g.Expect(c.AddListener(log)).To(Succeed())
	g.Expect(c.Start(context.Background(), testDoc(), "")).To(Succeed())

	err := c.Wait()
	var loadErr *LoadError
	g.Expect(errors.As(err, &loadErr)).To(BeTrue())
	g.Expect(err).To(MatchError(errBadModel))

	g.Expect(log.kinds()).To(Equal([]EventKind{EventStatus, EventModelLoadError, EventFinished}))
	g.Expect(log.all()[1].Message).To(ContainSubstring("bad model"))
	g.Expect(c.Status().Outcome).To(Equal(OutcomeLoadError))
	g.Expect(c.Step()).To(MatchError(ErrFinished))
}

func TestController_StepErrorIsFatal(t *testing.T) {
	g := NewWithT(t)
	m := newFakeModel(10)
	m.failAt = 3
	c, log := startController(t, m)

	g.Expect(c.Run()).To(Succeed())
	err := c.Wait()

	var stepErr *StepError
	g.Expect(errors.As(err, &stepErr)).To(BeTrue())
	g.Expect(stepErr.Index).To(Equal(3))
	g.Expect(err).To(MatchError(errSolver))

	g.Expect(log.indices()).To(Equal([]int{1, 2}))
	g.Expect(log.count(EventStepError)).To(Equal(1))
	g.Expect(m.isClosed()).To(BeTrue())
	g.Expect(c.Status().Outcome).To(Equal(OutcomeStepError))

	events := log.all()
	g.Expect(events[len(events)-2].Kind).To(Equal(EventStepError))
	checkSession(g, log, 9)
}

func TestController_RunToEnd(t *testing.T) {
	g := NewWithT(t)
	m := newFakeModel(10)
	c, log := startController(t, m)

	g.Expect(c.Run()).To(Succeed())
	g.Expect(c.Wait()).To(Succeed())

	g.Expect(log.indices()).To(Equal([]int{1, 2, 3, 4, 5, 6, 7, 8, 9}))
	g.Expect(c.Status().Outcome).To(Equal(OutcomeCompleted))
	checkSession(g, log, 9)
}

func TestController_CommandWhileBusyRunsNext(t *testing.T) {
	g := NewWithT(t)
	m := newFakeModel(10)
	m.gate = make(chan struct{})
	c, log := startController(t, m)

	g.Expect(c.Step()).To(Succeed())
	g.Eventually(func() int { return log.count(EventBeforeStep) }).Should(Equal(1))
	g.Expect(c.Step()).To(Succeed())

	m.gate <- struct{}{}
	m.gate <- struct{}{}
	g.Eventually(func() int { return log.count(EventStepDone) }).Should(Equal(2))
	g.Eventually(func() State { return c.Status().State }).Should(Equal(StatePaused))
	g.Expect(log.indices()).To(Equal([]int{1, 2}))
}

func TestController_ContextCancelKills(t *testing.T) {
	g := NewWithT(t)
	m := newFakeModel(10)
	ctx, cancel := context.WithCancel(context.Background())

	c := New(loaderFor(m), nil)
	g.Expect(c.Start(ctx, testDoc(), "")).To(Succeed())
	cancel()

	g.Expect(c.Wait()).To(Succeed())
	g.Expect(c.Status().Outcome).To(Equal(OutcomeKilled))
	g.Expect(m.isClosed()).To(BeTrue())
}

func TestController_ChannelListener(t *testing.T) {
	g := NewWithT(t)
	m := newFakeModel(6)
	ch := NewChannelListener(1)

	c := New(loaderFor(m), nil)
	g.Expect(c.AddListener(ch)).To(Succeed())
	g.Expect(c.Start(context.Background(), testDoc(), "")).To(Succeed())
	g.Expect(c.Run()).To(Succeed())

	var got []int
	var last EventKind
	for e := range ch.Events() {
		if e.Kind == EventProgress {
			got = append(got, e.Progress.Index)
		}
		last = e.Kind
	}
	g.Expect(got).To(Equal([]int{1, 2, 3, 4, 5}))
	g.Expect(last).To(Equal(EventFinished))
	g.Expect(c.Wait()).To(Succeed())
}
