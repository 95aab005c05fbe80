package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"

	"trading-journal/internal/filter"
)

var created = time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC)

func sampleSaved(t *testing.T) (filter.SavedFilter, string) {
	t.Helper()
	state := filter.NewState().With("impact", filter.Inclusion{Values: []string{"high"}})
	sf, err := filter.NewSavedFilter("macro", filter.ScopeNews, state, filter.SortSpec{Key: "score"}, true, created)
	if err != nil {
		t.Fatalf("构造 saved filter 失败: %v", err)
	}
	data, err := json.Marshal(sf)
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}
	return sf, string(data)
}

func TestRedisCreateSavedFilter(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisFilterStore(db, "test")
	sf, raw := sampleSaved(t)

	mock.ExpectHSetNX("test:saved_filters", "macro", raw).SetVal(true)
	if err := store.CreateSavedFilter(context.Background(), sf); err != nil {
		t.Fatalf("创建应成功: %v", err)
	}

	mock.ExpectHSetNX("test:saved_filters", "macro", raw).SetVal(false)
	if err := store.CreateSavedFilter(context.Background(), sf); !errors.Is(err, ErrExists) {
		t.Fatalf("重复名称应返回 ErrExists, 实际 %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRedisGetSavedFilter(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisFilterStore(db, "test")
	sf, raw := sampleSaved(t)

	mock.ExpectHGet("test:saved_filters", "macro").SetVal(raw)
	got, err := store.GetSavedFilter(context.Background(), "macro")
	if err != nil {
		t.Fatalf("读取应成功: %v", err)
	}
	if got.ID != sf.ID || !got.Notify || got.Scope != filter.ScopeNews {
		t.Fatalf("读取结果不一致: %+v", got)
	}
	inc, ok := got.State.Criteria["impact"].(filter.Inclusion)
	if !ok || len(inc.Values) != 1 || inc.Values[0] != "high" {
		t.Fatalf("state 未正确还原: %#v", got.State.Criteria)
	}

	mock.ExpectHGet("test:saved_filters", "missing").RedisNil()
	if _, err := store.GetSavedFilter(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("缺失时应返回 ErrNotFound, 实际 %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRedisTouchAndDelete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisFilterStore(db, "test")
	sf, raw := sampleSaved(t)

	later := created.Add(48 * time.Hour)
	touched, err := json.Marshal(sf.Touch(later))
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectWatch("test:saved_filters")
	mock.ExpectHGet("test:saved_filters", "macro").SetVal(raw)
	mock.ExpectTxPipeline()
	mock.ExpectHSet("test:saved_filters", "macro", string(touched)).SetVal(0)
	mock.ExpectTxPipelineExec()
	if err := store.TouchSavedFilter(context.Background(), "macro", later); err != nil {
		t.Fatalf("touch 应成功: %v", err)
	}

	mock.ExpectHDel("test:saved_filters", "macro").SetVal(1)
	if err := store.DeleteSavedFilter(context.Background(), "macro"); err != nil {
		t.Fatalf("删除应成功: %v", err)
	}

	mock.ExpectHDel("test:saved_filters", "macro").SetVal(0)
	if err := store.DeleteSavedFilter(context.Background(), "macro"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("重复删除应返回 ErrNotFound, 实际 %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRedisTouchDoesNotResurrectDeleted(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisFilterStore(db, "test")

	mock.ExpectWatch("test:saved_filters")
	mock.ExpectHGet("test:saved_filters", "macro").RedisNil()
	err := store.TouchSavedFilter(context.Background(), "macro", created)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("已删除的 filter 不应被 touch 写回, 实际 %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("不应有 hset 写入: %v", err)
	}
}

func TestRedisTouchRetriesOnConflict(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisFilterStore(db, "test")
	sf, raw := sampleSaved(t)

	later := created.Add(time.Hour)
	touched, err := json.Marshal(sf.Touch(later))
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectWatch("test:saved_filters").SetErr(redis.TxFailedErr)
	mock.ExpectWatch("test:saved_filters")
	mock.ExpectHGet("test:saved_filters", "macro").SetVal(raw)
	mock.ExpectTxPipeline()
	mock.ExpectHSet("test:saved_filters", "macro", string(touched)).SetVal(0)
	mock.ExpectTxPipelineExec()
	if err := store.TouchSavedFilter(context.Background(), "macro", later); err != nil {
		t.Fatalf("冲突后重试应成功: %v", err)
	}

	for i := 0; i < touchAttempts; i++ {
		mock.ExpectWatch("test:saved_filters").SetErr(redis.TxFailedErr)
	}
	if err := store.TouchSavedFilter(context.Background(), "macro", later); !errors.Is(err, redis.TxFailedErr) {
		t.Fatalf("重试耗尽应返回 TxFailedErr, 实际 %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRedisListSavedFiltersOrder(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisFilterStore(db, "test")

	older, _ := filter.NewSavedFilter("older", filter.ScopeTrades, filter.NewState(), filter.SortSpec{}, false, created)
	newer, _ := filter.NewSavedFilter("newer", filter.ScopeTrades, filter.NewState(), filter.SortSpec{}, false, created.Add(time.Hour))
	olderRaw, _ := json.Marshal(older)
	newerRaw, _ := json.Marshal(newer)

	mock.ExpectHGetAll("test:saved_filters").SetVal(map[string]string{
		"older":  string(olderRaw),
		"newer":  string(newerRaw),
		"broken": "{not json",
	})

	got, err := store.ListSavedFilters(context.Background())
	if err != nil {
		t.Fatalf("list 应成功: %v", err)
	}
	if len(got) != 2 || got[0].Name != "newer" || got[1].Name != "older" {
		t.Fatalf("排序或过滤不正确: %+v", got)
	}
}
