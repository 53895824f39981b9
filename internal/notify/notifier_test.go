package notify

import (
	"sync"
	"testing"
	"time"

	"flowcore/pkg/domain"
)

func event(kind domain.Kind, id string, op domain.Operation, attr string) domain.Event {
	return domain.Event{EntityKind: kind, EntityID: id, Operation: op, AttributeName: attr, Timestamp: time.Unix(0, 0)}
}

func TestTopicMatches(t *testing.T) {
	ev := event(domain.KindJob, "JOB_1", domain.OperationUpdate, "status")
	cases := []struct {
		name  string
		topic Topic
		want  bool
	}{
		{name: "wildcard", topic: Topic{}, want: true},
		{name: "kind", topic: Topic{Kind: domain.KindJob}, want: true},
		{name: "other kind", topic: Topic{Kind: domain.KindDataNode}, want: false},
		{name: "id and attribute", topic: Topic{EntityID: "JOB_1", Attribute: "status"}, want: true},
		{name: "other attribute", topic: Topic{Attribute: "stacktrace"}, want: false},
		{name: "operation", topic: Topic{Operation: domain.OperationCreate}, want: false},
	}
	for _, tc := range cases {
		if got := tc.topic.Matches(ev); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestPublishDeliversInOrderAndFilters(t *testing.T) {
	b := New()
	defer b.Close()
	jobs := b.Subscribe(Topic{Kind: domain.KindJob}, 8)
	all := b.Subscribe(Topic{}, 8)

	b.Publish(event(domain.KindJob, "JOB_1", domain.OperationUpdate, "status"))
	b.Publish(event(domain.KindDataNode, "DATANODE_1", domain.OperationUpdate, "edits"))
	b.Publish(event(domain.KindJob, "JOB_1", domain.OperationUpdate, "stacktrace"))

	first, second := <-jobs.Events, <-jobs.Events
	if first.AttributeName != "status" || second.AttributeName != "stacktrace" {
		t.Fatalf("unexpected order %s, %s", first.AttributeName, second.AttributeName)
	}
	select {
	case ev := <-jobs.Events:
		t.Fatalf("unexpected extra event %+v", ev)
	default:
	}
	if len(all.Events) != 3 {
		t.Fatalf("wildcard subscriber expected 3 events, got %d", len(all.Events))
	}
}

type countingLogger struct {
	mu    sync.Mutex
	warns int
}

func (l *countingLogger) Warn(string, ...any) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}

func TestPublishDropsOnOverflowWithoutBlocking(t *testing.T) {
	log := &countingLogger{}
	b := New(WithLogger(log))
	defer b.Close()
	sub := b.Subscribe(Topic{}, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Publish(event(domain.KindTask, "TASK_1", domain.OperationUpdate, "function"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a full subscriber")
	}
	if sub.Dropped() != 4 || b.Dropped() != 4 || log.warns != 4 {
		t.Fatalf("expected 4 drops, got sub=%d bus=%d logged=%d", sub.Dropped(), b.Dropped(), log.warns)
	}
}

func TestSubscribeFuncAndClose(t *testing.T) {
	b := New(WithDefaultBuffer(4))
	var mu sync.Mutex
	var got []string
	b.SubscribeFunc(Topic{Kind: domain.KindJob}, 0, func(ev domain.Event) {
		mu.Lock()
		got = append(got, ev.EntityID)
		mu.Unlock()
	})
	b.Publish(event(domain.KindJob, "JOB_1", domain.OperationCreate, ""))
	b.Publish(event(domain.KindJob, "JOB_2", domain.OperationCreate, ""))
	b.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "JOB_1" || got[1] != "JOB_2" {
		t.Fatalf("expected both events drained before close returned, got %v", got)
	}
	b.Publish(event(domain.KindJob, "JOB_3", domain.OperationCreate, ""))
	b.Close()
}

func TestSubscribeFuncAfterClose(t *testing.T) {
	b := New()
	b.Close()
	called := false
	sub := b.SubscribeFunc(Topic{}, 1, func(domain.Event) { called = true })
	if _, ok := <-sub.Events; ok {
		t.Fatalf("expected closed channel from a closed bus")
	}
	b.Publish(event(domain.KindJob, "JOB_1", domain.OperationCreate, ""))
	b.Close()
	if called {
		t.Fatalf("handler ran on a closed bus")
	}
}

func TestSubscribeFuncRacingClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		b := New()
		var wg sync.WaitGroup
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.SubscribeFunc(Topic{}, 1, func(domain.Event) {})
			}()
		}
		b.Close()
		wg.Wait()
		if n := len(b.subs); n != 0 {
			t.Fatalf("subscriptions registered after close: %d", n)
		}
	}
}

func TestUnsubscribeClosesQueue(t *testing.T) {
	b := New()
	defer b.Close()
	sub := b.Subscribe(Topic{}, 2)
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	if _, ok := <-sub.Events; ok {
		t.Fatalf("expected closed channel")
	}
	b.Publish(event(domain.KindCycle, "CYCLE_1", domain.OperationCreate, ""))
	if b.Dropped() != 0 {
		t.Fatalf("unsubscribed queue must not count drops")
	}
}
