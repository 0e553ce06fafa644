package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/perf-analysis/internal/parser/hprof/leakpath"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&LeakPathExclusionRule{}))
	return db
}

func TestGormExclusionRepository_ListEnabled(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormExclusionRepository(db)
	ctx := context.Background()

	t.Run("ListEnabled_Empty", func(t *testing.T) {
		rules, err := repo.ListEnabled(ctx)
		require.NoError(t, err)
		assert.Empty(t, rules)
	})

	t.Run("ListEnabled_SkipsDisabled", func(t *testing.T) {
		require.NoError(t, db.Create(&LeakPathExclusionRule{
			Kind:      "instance_field",
			ClassName: "java.lang.ThreadLocal$ThreadLocalMap",
			FieldName: "table",
			Status:    "weakly_reachable",
			Enabled:   true,
		}).Error)
		require.NoError(t, db.Create(&LeakPathExclusionRule{
			Kind:      "static_field",
			ClassName: "com.example.Cache",
			FieldName: "INSTANCE",
			Status:    "never_reachable",
			Enabled:   false,
		}).Error)

		rules, err := repo.ListEnabled(ctx)
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, leakpath.InstanceFieldExclusion, rules[0].Kind)
		assert.Equal(t, leakpath.WeaklyReachable, rules[0].Exclusion.Status)
		assert.Equal(t, "table", rules[0].FieldName)
	})
}

func TestGormExclusionRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormExclusionRepository(db)
	ctx := context.Background()

	id, err := repo.Create(ctx, LeakPathExclusionRule{
		Kind:       "thread",
		ThreadName: "Finalizer",
		Status:     "always_reachable",
		Enabled:    true,
	})
	require.NoError(t, err)
	assert.NotZero(t, id)

	rules, err := repo.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, leakpath.ThreadExclusion, rules[0].Kind)
	assert.Equal(t, "Finalizer", rules[0].ThreadName)
}

func TestGormExclusionRepository_SetEnabled(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormExclusionRepository(db)
	ctx := context.Background()

	id, err := repo.Create(ctx, LeakPathExclusionRule{
		Kind:    "static_field",
		Status:  "never_reachable",
		Enabled: true,
	})
	require.NoError(t, err)

	require.NoError(t, repo.SetEnabled(ctx, id, false))
	rules, err := repo.ListEnabled(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	t.Run("NotFound", func(t *testing.T) {
		err := repo.SetEnabled(ctx, 99999, true)
		assert.Error(t, err)
	})
}

func TestExclusionsFactory(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormExclusionRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&LeakPathExclusionRule{
		Kind:      "instance_field",
		ClassName: "java.lang.String",
		FieldName: "value",
		Status:    "weakly_reachable",
		Enabled:   true,
	}).Error)

	factory := ExclusionsFactory(repo)
	rules, err := factory(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "java.lang.String", rules[0].ClassName)
}
