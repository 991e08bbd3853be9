package cosmopolite

import "testing"

func TestRegistry_UpsertAndFind(t *testing.T) {
	r := newRegistry()
	subj := Subject{Name: "chat/general"}

	sub := r.upsert(subj, nil, nil)
	if sub.State != SubscriptionPending {
		t.Errorf("new subscription state = %v, want SubscriptionPending", sub.State)
	}

	found, ok := r.find(subj)
	if !ok {
		t.Fatal("find returned ok=false for just-inserted subject")
	}
	if found != sub {
		t.Error("find returned a different Subscription pointer than upsert")
	}
}

func TestRegistry_FindMissing(t *testing.T) {
	r := newRegistry()
	_, ok := r.find(Subject{Name: "nope"})
	if ok {
		t.Error("find returned ok=true for a subject never inserted")
	}
}

func TestRegistry_UpsertPreservesMessagesOnUpdate(t *testing.T) {
	r := newRegistry()
	subj := Subject{Name: "chat/general"}
	sub := r.upsert(subj, nil, nil)
	sub.Messages = append(sub.Messages, Message{Subject: subj, ID: 1})

	n := 5
	updated := r.upsert(subj, &n, nil)
	if updated != sub {
		t.Fatal("upsert on an existing subject should return the same Subscription")
	}
	if len(updated.Messages) != 1 {
		t.Errorf("len(Messages) = %d, want 1 (messages must survive an upsert)", len(updated.Messages))
	}
	if updated.NumMessages == nil || *updated.NumMessages != 5 {
		t.Errorf("NumMessages not updated to 5")
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := newRegistry()
	subj := Subject{Name: "chat/general"}
	r.upsert(subj, nil, nil)
	r.remove(subj)

	if _, ok := r.find(subj); ok {
		t.Error("subject still found after remove")
	}
}

func TestRegistry_DistinctSubjectsSameName(t *testing.T) {
	r := newRegistry()
	public := Subject{Name: "room"}
	private := Subject{Name: "room", ReadableOnlyBy: "alice"}

	r.upsert(public, nil, nil)
	r.upsert(private, nil, nil)

	if _, ok := r.find(public); !ok {
		t.Error("public subject not found")
	}
	if _, ok := r.find(private); !ok {
		t.Error("private subject not found")
	}

	r.remove(private)
	if _, ok := r.find(public); !ok {
		t.Error("removing private subject should not remove public subject")
	}
}

func TestRegistry_InsertMessage_UnknownSubjectDropped(t *testing.T) {
	r := newRegistry()
	inserted, known := r.insertMessage(Subject{Name: "ghost"}, Message{ID: 1})
	if known {
		t.Error("known = true for a subject with no subscription")
	}
	if inserted {
		t.Error("inserted = true for a subject with no subscription")
	}
}

func TestRegistry_InsertMessage_OrderedAppend(t *testing.T) {
	r := newRegistry()
	subj := Subject{Name: "chat"}
	r.upsert(subj, nil, nil)

	for _, id := range []int64{1, 2, 3} {
		inserted, known := r.insertMessage(subj, Message{Subject: subj, ID: id})
		if !known || !inserted {
			t.Fatalf("id %d: known=%v inserted=%v, want true,true", id, known, inserted)
		}
	}

	sub, _ := r.find(subj)
	if len(sub.Messages) != 3 {
		t.Fatalf("len(Messages) = %d, want 3", len(sub.Messages))
	}
	for i, id := range []int64{1, 2, 3} {
		if sub.Messages[i].ID != id {
			t.Errorf("Messages[%d].ID = %d, want %d", i, sub.Messages[i].ID, id)
		}
	}
}

func TestRegistry_InsertMessage_DuplicateIgnored(t *testing.T) {
	r := newRegistry()
	subj := Subject{Name: "chat"}
	r.upsert(subj, nil, nil)
	r.insertMessage(subj, Message{Subject: subj, ID: 5})

	inserted, known := r.insertMessage(subj, Message{Subject: subj, ID: 5})
	if !known {
		t.Fatal("known = false for a subject with a subscription")
	}
	if inserted {
		t.Error("inserted = true for a duplicate id")
	}

	sub, _ := r.find(subj)
	if len(sub.Messages) != 1 {
		t.Errorf("len(Messages) = %d, want 1", len(sub.Messages))
	}
}

func TestRegistry_InsertMessage_OutOfOrderInsertedInPlace(t *testing.T) {
	r := newRegistry()
	subj := Subject{Name: "chat"}
	r.upsert(subj, nil, nil)

	for _, id := range []int64{1, 5, 3} {
		r.insertMessage(subj, Message{Subject: subj, ID: id})
	}

	sub, _ := r.find(subj)
	want := []int64{1, 3, 5}
	if len(sub.Messages) != len(want) {
		t.Fatalf("len(Messages) = %d, want %d", len(sub.Messages), len(want))
	}
	for i, id := range want {
		if sub.Messages[i].ID != id {
			t.Errorf("Messages[%d].ID = %d, want %d", i, sub.Messages[i].ID, id)
		}
	}
}

func TestRegistry_Active(t *testing.T) {
	r := newRegistry()
	pending := Subject{Name: "pending"}
	active := Subject{Name: "active"}
	r.upsert(pending, nil, nil)
	sub := r.upsert(active, nil, nil)
	sub.State = SubscriptionActive

	got := r.active()
	if len(got) != 1 || got[0].Subject.Name != "active" {
		t.Errorf("active() = %v, want just %q", got, "active")
	}
}
