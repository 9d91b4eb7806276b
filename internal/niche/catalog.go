// Package niche はニッチ（コンテンツカテゴリ）の固定カタログを提供する。
// カタログは分類器への入力と、外部のサインアップ/設定UIの両方から参照される。
// 両者の同期は規約ベースであり、この層では強制しない。
package niche

// Catalog はニッチラベルの固定カタログ。
// 分類器はこのリストの中から最適なラベルを1つ選択する。
var Catalog = []string{
	"Fashion",
	"Beauty",
	"Fitness",
	"Food",
	"Tech",
	"Gaming",
	"Travel",
	"Finance",
	"Education",
	"Entertainment",
	"Music",
	"Sports",
	"DIY",
	"Pets",
	"Parenting",
}

// Contains は指定ラベルがカタログに含まれるかを返す。
// 分類器の出力検証に使用する。
func Contains(label string) bool {
	for _, n := range Catalog {
		if n == label {
			return true
		}
	}
	return false
}
