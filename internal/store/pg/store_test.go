package pg

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"elaqe.org/internal/audit"
	"elaqe.org/internal/auth"
	"elaqe.org/internal/directory"
	"elaqe.org/internal/groups"
	"elaqe.org/internal/messaging"
)

var (
	instCols  = []string{"id", "long_name", "short_name", "type", "responsible_person_id", "message_limit", "is_active", "tims_uuid", "tims_access_token", "corporation_ids", "created_by", "created_at", "updated_at"}
	empCols   = []string{"id", "institution_id", "first_name", "last_name", "email", "phone", "position", "tims_username", "is_active", "created_at", "updated_at"}
	groupCols = []string{"id", "institution_id", "name", "description", "members", "admins", "max_members", "is_active", "created_by", "created_at", "updated_at"}
	stamp     = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return New(db), mock
}

func TestDirectoryInstitution(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("select .* from institutions where id = \\$1").
		WithArgs("inst-a").
		WillReturnRows(sqlmock.NewRows(instCols).AddRow("inst-a", "Agency A", "AA", "dövlət", "resp-1", 10, true, "uuid", "token", []byte(`[10,20]`), "", stamp, stamp))
	mock.ExpectQuery("select .* from institutions where id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(instCols))

	inst, err := s.Directory().Institution(context.Background(), "inst-a")
	if err != nil {
		t.Fatalf("Institution: %v", err)
	}
	if inst.ResponsiblePersonID != "resp-1" || !slices.Equal(inst.CorporationIDs, []int{10, 20}) || inst.TimsUUID != "uuid" {
		t.Fatalf("unexpected institution %+v", inst)
	}
	if _, err := s.Directory().Institution(context.Background(), "missing"); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDirectoryEmployeesKeepsRequestOrder(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("from employees\\s+where id in \\(select jsonb_array_elements_text").
		WithArgs(`["e2","e9","e1"]`).
		WillReturnRows(sqlmock.NewRows(empCols).
			AddRow("e1", "inst-a", "Ada", "L", "e1@x", "", "", "u1", true, stamp, stamp).
			AddRow("e2", "inst-a", "Bob", "K", "e2@x", "", "", "u2", true, stamp, stamp))

	got, err := s.Directory().Employees(context.Background(), []string{"e2", "e9", "e1"})
	if err != nil {
		t.Fatalf("Employees: %v", err)
	}
	if len(got) != 2 || got[0].ID != "e2" || got[1].ID != "e1" {
		t.Fatalf("unexpected employees %+v", got)
	}
}

func TestDirectoryActorByID(t *testing.T) {
	s, mock := newMock(t)
	userCols := []string{"id", "name", "email", "institution_id", "permissions", "is_active", "created_at"}
	mock.ExpectQuery("from users where id = \\$1").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("u1", "Op", "op@x", "inst-a", []byte(`{"canMessageDirect":true}`), true, stamp))
	mock.ExpectQuery("from users where id = \\$1").WithArgs("u2").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("u2", "Old", "old@x", nil, []byte(`{}`), false, stamp))
	mock.ExpectQuery("from users where id = \\$1").WithArgs("u3").
		WillReturnRows(sqlmock.NewRows(userCols))

	dir := s.Directory()
	actor, err := dir.ActorByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ActorByID: %v", err)
	}
	if actor.InstitutionID != "inst-a" || !actor.Permissions.CanMessageDirect {
		t.Fatalf("unexpected actor %+v", actor)
	}
	if _, err := dir.ActorByID(context.Background(), "u2"); !errors.Is(err, auth.ErrActorInactive) {
		t.Fatalf("expected ErrActorInactive, got %v", err)
	}
	if _, err := dir.ActorByID(context.Background(), "u3"); !errors.Is(err, auth.ErrActorNotFound) {
		t.Fatalf("expected ErrActorNotFound, got %v", err)
	}
}

func TestGroupsCreateMapsUniqueViolation(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("insert into groups").WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	_, err := s.Groups().Create(context.Background(), groups.Group{InstitutionID: "inst-a", Name: "Ops", MaxMembers: 500, IsActive: true})
	if !errors.Is(err, groups.ErrNameTaken) || !errors.Is(err, directory.ErrConflict) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
}

func TestGroupsMutateLocksRow(t *testing.T) {
	s, mock := newMock(t)
	repo := s.Groups()
	repo.now = func() time.Time { return stamp }

	mock.ExpectBegin()
	mock.ExpectQuery("select .* from groups where id = \\$1 for update").WithArgs("g1").
		WillReturnRows(sqlmock.NewRows(groupCols).AddRow("g1", "inst-a", "Ops", "", []byte(`["e1"]`), []byte(`[]`), 500, true, "u", stamp, stamp))
	mock.ExpectExec("update groups").
		WithArgs("g1", "Ops", "", `["e1","e2"]`, `[]`, 500, true, stamp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	g, err := repo.Mutate(context.Background(), "g1", func(g *groups.Group) error { return g.AddMember("e2") })
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if !slices.Equal(g.Members, []string{"e1", "e2"}) {
		t.Fatalf("unexpected members %v", g.Members)
	}
}

func TestGroupsMutateRollsBackOnError(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("for update").WithArgs("g1").
		WillReturnRows(sqlmock.NewRows(groupCols).AddRow("g1", "inst-a", "Ops", "", []byte(`["e1"]`), []byte(`[]`), 1, true, "u", stamp, stamp))
	mock.ExpectRollback()

	_, err := s.Groups().Mutate(context.Background(), "g1", func(g *groups.Group) error { return g.AddMember("e2") })
	if !errors.Is(err, groups.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestMessagesUnreadCount(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("not \\(read_by @> \\$2::jsonb\\)").
		WithArgs("g1", `[{"employee":"e1"}]`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := s.Messages().UnreadCount(context.Background(), "g1", "e1")
	if err != nil || n != 3 {
		t.Fatalf("UnreadCount = %d, %v", n, err)
	}
}

func TestMessagesMissing(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("from messages where id = \\$1").WithArgs("m1").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := s.Messages().Message(context.Background(), "m1"); !errors.Is(err, messaging.ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestAuditMessageLogsFilter(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("select count\\(\\*\\) from message_logs where actor_user_id = \\$1 and action = \\$2").
		WithArgs("u1", "failed").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("from message_logs where actor_user_id = \\$1 and action = \\$2 order by created_at desc limit \\$3").
		WithArgs("u1", "failed", 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "action", "actor_user_id", "sender_id", "receiver_id", "group_id", "institution_id", "content_preview", "response_code", "error_message", "created_at"}).
			AddRow("l1", "group", "failed", "u1", "e1", "", "g1", "inst-a", "hi", 502, "bad gateway", stamp))

	logs, total, err := s.Audit().MessageLogs(context.Background(), audit.MessageFilter{ActorUserID: "u1", Action: audit.ActionFailed, Limit: 20})
	if err != nil {
		t.Fatalf("MessageLogs: %v", err)
	}
	if total != 1 || len(logs) != 1 || logs[0].ResponseCode == nil || *logs[0].ResponseCode != 502 {
		t.Fatalf("unexpected logs %+v", logs)
	}
}

func TestAuditAppendUser(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("insert into user_logs").
		WithArgs("l1", "u1", "u1", "update", "Direct message sent", `{"employeeId":"e1"}`, stamp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Audit().AppendUser(context.Background(), &audit.UserLog{
		ID: "l1", UserID: "u1", ActorUserID: "u1", Action: audit.UserUpdate,
		Message: "Direct message sent", Changes: map[string]any{"employeeId": "e1"}, CreatedAt: stamp,
	})
	if err != nil {
		t.Fatalf("AppendUser: %v", err)
	}
}
