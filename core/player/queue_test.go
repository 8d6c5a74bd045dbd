package player

import (
	"errors"
	"math/rand/v2"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"MusicManager/core/apperr"
	"MusicManager/model"
)

func TestQueueMutationsNotify(t *testing.T) {
	var seen [][]string
	q := NewQueue(nil, func(items []model.Track) { seen = append(seen, ids(items)) })

	q.Append(track("a"), track("b"))
	q.Prepend(track("z"))
	q.Remove(1)
	q.Move(0, 1)

	want := [][]string{
		{"a", "b"},
		{"z", "a", "b"},
		{"z", "b"},
		{"b", "z"},
	}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("notifications = %v, want %v", seen, want)
	}

	head, ok := q.PopFront()
	if !ok || head.ID != "b" {
		t.Fatalf("PopFront = %v %v", head.ID, ok)
	}
	q.Clear()
	if q.Len() != 0 {
		t.Errorf("len after clear = %d", q.Len())
	}
	if _, ok := q.PopFront(); ok {
		t.Error("PopFront on an empty queue")
	}

	n := len(seen)
	q.Clear()
	if len(seen) != n {
		t.Error("clearing an empty queue should not notify")
	}
}

func TestQueueNotifiesInMutationOrder(t *testing.T) {
	var mu sync.Mutex
	var seen [][]string
	entered := make(chan struct{})
	release := make(chan struct{})
	first := true

	q := NewQueue(nil, func(items []model.Track) {
		mu.Lock()
		block := first
		first = false
		mu.Unlock()
		if block {
			close(entered)
			<-release
		}
		mu.Lock()
		seen = append(seen, ids(items))
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		q.Append(track("a"))
	}()
	<-entered
	go func() {
		defer wg.Done()
		q.Append(track("b"))
	}()
	// 给第二次追加留出超过第一次回调的时间
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	want := [][]string{{"a"}, {"a", "b"}}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("notifications = %v, want %v", seen, want)
	}
	if last := seen[len(seen)-1]; !reflect.DeepEqual(last, ids(q.Items())) {
		t.Errorf("last notification %v disagrees with the queue %v", last, ids(q.Items()))
	}
}

func TestQueueRejectsBadInput(t *testing.T) {
	q := NewQueue([]model.Track{track("a")}, nil)

	if err := q.Remove(3); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("Remove(3) = %v", err)
	}
	if err := q.Move(0, -1); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("Move(0,-1) = %v", err)
	}
	if err := q.Append(model.Track{Title: "no id"}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("Append(invalid) = %v", err)
	}
	if got := ids(q.Items()); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("queue changed on error: %v", got)
	}
}

func TestQueueItemsIsACopy(t *testing.T) {
	q := NewQueue([]model.Track{track("a")}, nil)
	items := q.Items()
	items[0].ID = "changed"
	if f, _ := q.Front(); f.ID != "a" {
		t.Error("Items leaked the internal slice")
	}
}

func TestQueueDrag(t *testing.T) {
	q := NewQueue([]model.Track{track("a"), track("b"), track("c"), track("d")}, nil)

	if err := q.DragOver(2); err != nil || q.Dragged() != -1 {
		t.Fatal("DragOver without a drag should do nothing")
	}

	if err := q.DragStart(0); err != nil {
		t.Fatal(err)
	}
	q.DragOver(1)
	q.DragOver(3)
	if got := ids(q.Items()); !reflect.DeepEqual(got, []string{"b", "c", "d", "a"}) {
		t.Errorf("after drag = %v", got)
	}
	if q.Dragged() != 3 {
		t.Errorf("dragged = %d, want 3", q.Dragged())
	}
	q.DragEnd()
	if q.Dragged() != -1 {
		t.Error("drag still active after DragEnd")
	}

	if err := q.DragStart(9); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("DragStart(9) = %v", err)
	}
}

func TestQueueShuffleIsAPermutation(t *testing.T) {
	in := []model.Track{track("a"), track("b"), track("c"), track("d"), track("e")}
	q := NewQueue(in, nil)

	rng := rand.New(rand.NewPCG(7, 11))
	orders := map[string]bool{}
	for i := 0; i < 50; i++ {
		if err := q.Shuffle(rng); err != nil {
			t.Fatal(err)
		}
		got := ids(q.Items())
		orders[strings.Join(got, "")] = true

		sorted := slices.Clone(got)
		slices.Sort(sorted)
		if !reflect.DeepEqual(sorted, []string{"a", "b", "c", "d", "e"}) {
			t.Fatalf("shuffle lost entries: %v", got)
		}
	}
	if len(orders) < 10 {
		t.Errorf("only %d distinct orders in 50 shuffles", len(orders))
	}
}
