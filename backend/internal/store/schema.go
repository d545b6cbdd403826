package store

import (
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var mysqlDB *gorm.DB

func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	mysqlDB = db
	return db, nil
}

// OperationRow 已接受操作的落盘行。
// 主键 (space, record_key, based_on) 就是乐观并发的唯一性约束；
// (space, seq) 索引服务增量拉取。
type OperationRow struct {
	Space          string `gorm:"column:space;primaryKey;size:190;index:idx_space_seq,priority:1"`
	RecordKey      string `gorm:"column:record_key;primaryKey;size:190"`
	BasedOnVersion int64  `gorm:"column:based_on;primaryKey"`
	Seq            int64  `gorm:"column:seq;index:idx_space_seq,priority:2"`
	Actor          string `gorm:"column:actor;size:190"`
	Kind           string `gorm:"column:kind;size:16"`
	Payload        string `gorm:"column:payload;type:longtext"`
	OccurredAt     int64  `gorm:"column:occurred_at"`
	// 本次操作之后的物化视图（JSON），与操作同行写入，读端原子可见
	Jrec string `gorm:"column:jrec;type:longtext"`
}

func (OperationRow) TableName() string { return "sync_operations" }

// SequenceRow 每个 Record Space 一行的单调计数器
type SequenceRow struct {
	Space string `gorm:"column:space;primaryKey;size:190"`
	N     int64  `gorm:"column:n"`
}

func (SequenceRow) TableName() string { return "sync_sequences" }

// Migrate 启动时建表建索引。失败视为致命错误，由调用方 fatal。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&OperationRow{}, &SequenceRow{})
}
