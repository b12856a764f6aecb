package model

import "time"

// Task はユーザーが所有するタスクを表す。
// すべての読み取り・更新・削除はtask.UserIDとセッションのユーザーIDの
// 一致を単一クエリで検証する（所有権チェック）。
type Task struct {
	ID        string
	UserID    string
	Title     string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
