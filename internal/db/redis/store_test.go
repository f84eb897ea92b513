package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/malibio/nodespace-core-logic/internal/db"
	"github.com/malibio/nodespace-core-logic/internal/domain"
	"github.com/malibio/nodespace-core-logic/internal/domain/level"
	"github.com/malibio/nodespace-core-logic/internal/domain/node"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewStore_Validation(t *testing.T) {
	if _, err := NewStore(Config{VectorDim: 128}); err == nil {
		t.Error("expected error for missing addrs")
	}
	if _, err := NewStore(Config{Addrs: []string{"localhost:6379"}}); err == nil {
		t.Error("expected error for missing vector dimension")
	}
}

// --- node.go tests ---

func nodeHash(content string) map[string]rueidis.RedisMessage {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return map[string]rueidis.RedisMessage{
		"__type":    mock.RedisString("text"),
		"__content": mock.RedisString(content),
		"__meta":    mock.RedisString("{}"),
		"__parent":  mock.RedisString("root-1"),
		"__root":    mock.RedisString("root-1"),
		"__prev":    mock.RedisString(""),
		"__next":    mock.RedisString(""),
		"__created": mock.RedisString(now),
		"__updated": mock.RedisString(now),
	}
}

func TestGetNode_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "nodespace:node:abc")).
		Return(mock.Result(mock.RedisMap(nodeHash("Marketing Budget"))))

	s := NewStoreForTest(c)
	n, err := s.GetNode(context.Background(), "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.ID() != "abc" || n.Content() != "Marketing Budget" {
		t.Errorf("unexpected node: id=%s content=%q", n.ID(), n.Content())
	}
	if n.ParentID() != "root-1" || n.Type() != node.Text {
		t.Errorf("unexpected node fields: parent=%s type=%s", n.ParentID(), n.Type())
	}
}

func TestGetNode_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "nodespace:node:ghost")).
		Return(mock.Result(mock.RedisMap(nil)))

	s := NewStoreForTest(c)
	_, err := s.GetNode(context.Background(), "ghost")
	if !errors.Is(err, db.ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		t.Error("expected the domain sentinel to match through the db sentinel")
	}
}

func TestStoreNode_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "HSET" && cmd[1] == "nodespace:node:abc"
		})).
		Return(mock.Result(mock.RedisInt64(9)))

	n, err := node.New("abc", node.Text, "hello", "root-1", nil)
	if err != nil {
		t.Fatal(err)
	}

	s := NewStoreForTest(c)
	if err := s.StoreNode(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateNode_CarriesVectorsAcross(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	fields := nodeHash("old content")
	fields[level.Individual.Column()] = mock.RedisString("\x01\x02\x03\x04")

	var wroteVector bool
	gomock.InOrder(
		c.EXPECT().
			Do(gomock.Any(), mock.Match("HGETALL", "nodespace:node:abc")).
			Return(mock.Result(mock.RedisMap(fields))),
		c.EXPECT().
			Do(gomock.Any(), mock.Match("DEL", "nodespace:node:abc")).
			Return(mock.Result(mock.RedisInt64(1))),
		c.EXPECT().
			Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
				if cmd[0] != "HSET" {
					return false
				}
				for _, arg := range cmd {
					if arg == level.Individual.Column() {
						wroteVector = true
					}
				}
				return true
			})).
			Return(mock.Result(mock.RedisInt64(10))),
	)

	n, err := node.New("abc", node.Text, "new content", "root-1", nil)
	if err != nil {
		t.Fatal(err)
	}

	s := NewStoreForTest(c)
	if err := s.UpdateNode(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !wroteVector {
		t.Error("expected the stored vector to survive the rewrite")
	}
}

func TestUpdateNode_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGETALL", "nodespace:node:ghost")).
		Return(mock.Result(mock.RedisMap(nil)))

	n, err := node.New("ghost", node.Text, "x", "root-1", nil)
	if err != nil {
		t.Fatal(err)
	}

	s := NewStoreForTest(c)
	if err := s.UpdateNode(context.Background(), n); !errors.Is(err, db.ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestRootByKey_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGET", "nodespace:roots", "2024-06-15")).
		Return(mock.Result(mock.RedisString("root-1")))

	s := NewStoreForTest(c)
	id, err := s.RootByKey(context.Background(), "2024-06-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "root-1" {
		t.Errorf("expected root-1, got %s", id)
	}
}

func TestRootByKey_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGET", "nodespace:roots", "2024-06-16")).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreForTest(c)
	_, err := s.RootByKey(context.Background(), "2024-06-16")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestSetVector_InvalidLevel(t *testing.T) {
	s := NewStoreForTest(nil) // client not called
	err := s.SetVector(context.Background(), "abc", level.Level("bogus"), []float32{1})
	if err == nil {
		t.Fatal("expected error for invalid level")
	}
}

// --- search.go tests ---

func TestVectorSearch_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[1] == "nodespace-nodes"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(2),
			mock.RedisString("nodespace:node:a"),
			mock.RedisArray(
				mock.RedisString("__content"), mock.RedisString("budget planning"),
				mock.RedisString("__score"), mock.RedisString("0.25"),
			),
			mock.RedisString("nodespace:node:b"),
			mock.RedisArray(
				mock.RedisString("__content"), mock.RedisString("hiring plan"),
				mock.RedisString("__score"), mock.RedisString("0.5"),
			),
		)))

	s := NewStoreForTest(c)
	hits, err := s.VectorSearch(context.Background(), level.Individual, []float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "a" || hits[0].Content != "budget planning" {
		t.Errorf("unexpected hit: %+v", hits[0])
	}
	if hits[0].Score != 0.75 {
		t.Errorf("expected distance converted to similarity 0.75, got %g", hits[0].Score)
	}
}

func TestVectorSearch_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(0))))

	s := NewStoreForTest(c)
	hits, err := s.VectorSearch(context.Background(), level.Document, []float32{1}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestVectorSearch_Validation(t *testing.T) {
	s := NewStoreForTest(nil)
	ctx := context.Background()

	if _, err := s.VectorSearch(ctx, level.Level("bogus"), []float32{1}, 5); err == nil {
		t.Error("expected error for invalid level")
	}
	if _, err := s.VectorSearch(ctx, level.Individual, nil, 5); err == nil {
		t.Error("expected error for empty query vector")
	}
	if _, err := s.VectorSearch(ctx, level.Individual, []float32{1}, 0); err == nil {
		t.Error("expected error for k=0")
	}
}

func TestVectorToBytes(t *testing.T) {
	v := []float32{1.0, 2.0}
	b := vectorToBytes(v)
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
}

// --- hash.go tests ---

func TestHGetAllMulti_Empty(t *testing.T) {
	s := NewStoreForTest(nil) // client not called
	results, err := s.hgetAllMulti(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil, got %v", results)
	}
}

func TestScan_MultiPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	gomock.InOrder(
		c.EXPECT().
			Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
				return cmd[0] == "SCAN" && cmd[1] == "0"
			})).
			Return(mock.Result(mock.RedisArray(
				mock.RedisString("7"),
				mock.RedisArray(mock.RedisString("nodespace:node:a")),
			))),
		c.EXPECT().
			Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
				return cmd[0] == "SCAN" && cmd[1] == "7"
			})).
			Return(mock.Result(mock.RedisArray(
				mock.RedisString("0"),
				mock.RedisArray(mock.RedisString("nodespace:node:b")),
			))),
	)

	s := NewStoreForTest(c)
	keys, err := s.scan(context.Background(), "nodespace:node:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}
