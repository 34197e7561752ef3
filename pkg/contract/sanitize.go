package contract

import "strings"

var (
	tsvStrip = strings.NewReplacer("\t", "", "\n", "", "\r", "")
	csvStrip = strings.NewReplacer("\n", "", "\r", "")
)

// TSVField 去除制表符与换行，使字段可安全放入一行 TSV。
func TSVField(s string) string { return tsvStrip.Replace(s) }

// CSVField 去除换行，使字段可安全放入一行 CSV。
// 逗号不转义：读取端只按前两个逗号切分，名称中的逗号可原样往返。
func CSVField(s string) string { return csvStrip.Replace(s) }
