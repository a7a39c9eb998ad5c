package parser

import (
	"fmt"
	"strings"
	"testing"
)

var benchHeader = ParseHeader("eventId|eventName|startDate|endDate|parentId|researchValue|description")

var benchLines = map[string]string{
	"root":   "3f1c9a7e-0b2d-4c55-9e61-2a8d7f4b1c03|Founding of the Archive|2023-01-01T10:00:00Z|2023-01-01T11:30:00Z|NULL|High|The archive opens its doors",
	"child":  "a6e0d2b4-5c1f-4e8a-b7d3-9f2c6e1a0b58|Cataloguing|2023-01-01T10:30:00Z|2023-01-01T12:00:00Z|3f1c9a7e-0b2d-4c55-9e61-2a8d7f4b1c03|Medium|First pass over the collection",
	"long":   "c1d2e3f4-a5b6-4c7d-8e9f-0a1b2c3d4e5f|Survey|2023-01-02T08:00:00Z|2023-01-05T18:00:00Z|NULL|Low|" + strings.Repeat("field notes ", 200),
	"broken": "c1d2e3f4-a5b6-4c7d-8e9f-0a1b2c3d4e5f|Survey|not-a-date|2023-01-05T18:00:00Z|NULL|Low|bad start",
}

func BenchmarkParse(b *testing.B) {
	p := New(Options{})
	for name, line := range benchLines {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(line)))
			for i := 0; i < b.N; i++ {
				_, _ = p.Parse(benchHeader, line, i+2)
			}
		})
	}
}

func BenchmarkParseDate(b *testing.B) {
	for _, s := range []string{"2023-01-01T10:00:00Z", "2023-01-01T10:00:00.123+02:00", "2023-01-01"} {
		b.Run(fmt.Sprintf("%q", s), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := ParseDate(s); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
