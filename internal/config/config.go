// Package config parses the two external input files the node takes:
// the hosts table (id -> ip:port) and the per-mode run config (URB
// message count, or LA shots/vs/ds plus per-shot proposal lines).
// Grounded on yousefan-epaxos/main.go's bufio.Scanner peers-file parser,
// since the teacher itself takes peers purely via CLI flags.
package config

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Host is one entry of the hosts table: a fixed-membership cluster
// member identified by a 1-indexed id and its UDP address.
type Host struct {
	ID   uint64
	IP   net.IP
	Port int
}

// HostsTable is the ordered id->(ip,port) mapping spec.md treats as an
// external input, never parsed by the core layers themselves.
type HostsTable struct {
	byID  map[uint64]Host
	order []uint64
}

// ParseHostsFile reads "id ip port" lines, one host per line, 1-indexed.
func ParseHostsFile(path string) (*HostsTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open hosts file %q: %w", path, err)
	}
	defer f.Close()

	table := &HostsTable{byID: make(map[uint64]Host)}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("config: hosts file %q line %d: want \"id ip port\", got %q", path, lineNo, line)
		}
		id, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: hosts file %q line %d: bad id %q: %w", path, lineNo, fields[0], err)
		}
		ip := net.ParseIP(fields[1])
		if ip == nil {
			return nil, fmt.Errorf("config: hosts file %q line %d: bad ip %q", path, lineNo, fields[1])
		}
		port, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("config: hosts file %q line %d: bad port %q: %w", path, lineNo, fields[2], err)
		}
		if _, dup := table.byID[id]; dup {
			return nil, fmt.Errorf("config: hosts file %q line %d: duplicate id %d", path, lineNo, id)
		}
		table.byID[id] = Host{ID: id, IP: ip, Port: port}
		table.order = append(table.order, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read hosts file %q: %w", path, err)
	}
	if len(table.order) == 0 {
		return nil, fmt.Errorf("config: hosts file %q has no entries", path)
	}
	return table, nil
}

// Self returns the host entry for id, and whether it was present.
func (t *HostsTable) Self(id uint64) (Host, bool) {
	h, ok := t.byID[id]
	return h, ok
}

// Peers returns every host other than id, in hosts-file order.
func (t *HostsTable) Peers(id uint64) []Host {
	out := make([]Host, 0, len(t.order)-1)
	for _, other := range t.order {
		if other == id {
			continue
		}
		out = append(out, t.byID[other])
	}
	return out
}

// N returns the total number of processes in the cluster.
func (t *HostsTable) N() int {
	return len(t.order)
}

// Mode selects which of the two protocols a run config drives.
type Mode int

const (
	ModeURB Mode = iota
	ModeLA
)

// RunConfig is the parsed contract of the inbound config file: either
// "<total_messages>" for URB mode, or "<shots> <vs> <ds>" followed by one
// proposal-set line per shot for LA mode.
type RunConfig struct {
	Mode Mode

	// URB mode.
	TotalMessages uint32

	// LA mode.
	Shots     int
	MaxVS     int // max proposal set size per shot
	MaxDS     int // max distinct values across the whole run
	Proposals [][]uint32
}

// ParseConfigFile distinguishes URB vs LA mode by the shape of the first
// line: one field means URB's total_messages; three fields mean LA's
// "shots vs ds".
func ParseConfigFile(path string) (*RunConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open config file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, fmt.Errorf("config: config file %q is empty", path)
	}
	header := strings.Fields(strings.TrimSpace(scanner.Text()))

	switch len(header) {
	case 1:
		total, err := strconv.ParseUint(header[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("config: config file %q: bad total_messages %q: %w", path, header[0], err)
		}
		return &RunConfig{Mode: ModeURB, TotalMessages: uint32(total)}, nil

	case 3:
		shots, err := strconv.Atoi(header[0])
		if err != nil {
			return nil, fmt.Errorf("config: config file %q: bad shots %q: %w", path, header[0], err)
		}
		vs, err := strconv.Atoi(header[1])
		if err != nil {
			return nil, fmt.Errorf("config: config file %q: bad vs %q: %w", path, header[1], err)
		}
		ds, err := strconv.Atoi(header[2])
		if err != nil {
			return nil, fmt.Errorf("config: config file %q: bad ds %q: %w", path, header[2], err)
		}
		rc := &RunConfig{Mode: ModeLA, Shots: shots, MaxVS: vs, MaxDS: ds}
		distinct := make(map[uint32]struct{})
		for i := 0; i < shots; i++ {
			if !scanner.Scan() {
				return nil, fmt.Errorf("config: config file %q: expected %d proposal lines, got %d", path, shots, i)
			}
			fields := strings.Fields(strings.TrimSpace(scanner.Text()))
			values := make([]uint32, 0, len(fields))
			seen := make(map[uint32]struct{}, len(fields))
			for _, field := range fields {
				v, err := strconv.ParseUint(field, 10, 32)
				if err != nil {
					return nil, fmt.Errorf("config: config file %q line %d: bad proposal value %q: %w", path, i+2, field, err)
				}
				value := uint32(v)
				if _, dup := seen[value]; dup {
					return nil, fmt.Errorf("config: config file %q line %d: duplicate proposal value %d", path, i+2, value)
				}
				seen[value] = struct{}{}
				distinct[value] = struct{}{}
				values = append(values, value)
			}
			if len(values) > vs {
				return nil, fmt.Errorf("config: config file %q line %d: %d values exceeds vs=%d", path, i+2, len(values), vs)
			}
			rc.Proposals = append(rc.Proposals, values)
		}
		if len(distinct) > ds {
			return nil, fmt.Errorf("config: config file %q: %d distinct values across the run exceeds ds=%d", path, len(distinct), ds)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("config: read config file %q: %w", path, err)
		}
		return rc, nil

	default:
		return nil, fmt.Errorf("config: config file %q: first line must have 1 field (URB) or 3 fields (LA), got %d", path, len(header))
	}
}
