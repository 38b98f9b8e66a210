package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/ragline/ragline/internal/db"
)

// SearchKNN runs a KNN vector similarity search via FT.SEARCH, filtered by
// owner and optionally by a document id set.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	if q.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	filterStr := buildFilter(q.UserID, q.DocumentIDs)
	queryStr := fmt.Sprintf("(%s)=>[KNN %d @vector $BLOB AS dist]", filterStr, q.K)

	args := []string{q.IndexName, queryStr}

	if len(q.ReturnFields) > 0 {
		ret := append([]string{}, q.ReturnFields...)
		ret = append(ret, "dist")
		args = append(args, "RETURN", strconv.Itoa(len(ret)))
		args = append(args, ret...)
	}

	args = append(args,
		"SORTBY", "dist",
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", vectorToBytes(q.Vector),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseKNNResult(raw)
}

// buildFilter builds the TAG filter prefix of the KNN query.
func buildFilter(userID string, documentIDs []string) string {
	var sb strings.Builder
	sb.WriteString("@user_id:{")
	sb.WriteString(escapeTag(userID))
	sb.WriteString("}")

	if len(documentIDs) > 0 {
		escaped := make([]string, len(documentIDs))
		for i, id := range documentIDs {
			escaped[i] = escapeTag(id)
		}
		sb.WriteString(" @document_id:{")
		sb.WriteString(strings.Join(escaped, "|"))
		sb.WriteString("}")
	}
	return sb.String()
}

// escapeTag escapes punctuation that RediSearch treats as syntax inside TAG
// queries (uuids carry hyphens).
func escapeTag(s string) string {
	var sb strings.Builder
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isAlpha && !isDigit && r != '_' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// parseKNNResult decodes the RESP2 FT.SEARCH reply:
// [total, key1, fields1, key2, fields2, ...].
func parseKNNResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, total)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fieldArr, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		fields := parseFieldPairs(fieldArr)
		entry := db.SearchEntry{Key: key, Fields: fields}
		if distStr, ok := fields["dist"]; ok {
			if dist, err := strconv.ParseFloat(distStr, 64); err == nil {
				// cosine distance -> similarity
				entry.Score = 1 - dist
			}
			delete(fields, "dist")
		}
		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(arr []rueidis.RedisMessage) map[string]string {
	fields := make(map[string]string, len(arr)/2)
	for j := 0; j+1 < len(arr); j += 2 {
		name, err := arr[j].ToString()
		if err != nil {
			continue
		}
		val, err := arr[j+1].ToString()
		if err != nil {
			continue
		}
		fields[name] = val
	}
	return fields
}
