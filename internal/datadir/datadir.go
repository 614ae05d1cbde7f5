// Package datadir browses the directory the upload service writes to:
// a uids.json registry and one sub-directory of raw sensor files per user.
package datadir

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chrissnell/tmdtools/internal/log"
	"github.com/chrissnell/tmdtools/internal/trip"
)

// DefaultMinTripDuration is the minimum length of a trip worth segmenting.
const DefaultMinTripDuration = 5 * time.Minute

// Modes recorded while testing the app. They never count as data.
var testModes = map[string]bool{
	"test":        true,
	"exploration": true,
}

// IsTestMode reports whether mode is only used for app testing.
func IsTestMode(mode string) bool {
	return testModes[mode]
}

// Directory is a data directory.
type Directory struct {
	Path     string
	Registry *Registry
}

// Open loads the registry of the data directory at path.
func Open(path string) (*Directory, error) {
	reg, err := LoadRegistry(filepath.Join(path, UIDsFilename))
	if err != nil {
		return nil, err
	}
	return &Directory{Path: path, Registry: reg}, nil
}

// Users returns every registered user, ordered by uid.
func (d *Directory) Users() []*User {
	uids := d.Registry.UIDs()
	users := make([]*User, 0, len(uids))
	for _, uid := range uids {
		info, _ := d.Registry.Get(uid)
		users = append(users, d.newUser(uid, info))
	}
	return users
}

// ExistingUsers returns the registered users that uploaded at least once,
// i.e. that own a sub-directory.
func (d *Directory) ExistingUsers() []*User {
	var users []*User
	for _, u := range d.Users() {
		if u.Exists() {
			users = append(users, u)
		}
	}
	return users
}

// ByUIDPrefix returns the users whose uid starts with prefix.
func (d *Directory) ByUIDPrefix(prefix string) []*User {
	var users []*User
	for _, u := range d.Users() {
		if strings.HasPrefix(u.UID, prefix) {
			users = append(users, u)
		}
	}
	return users
}

// User returns the registered user uid.
func (d *Directory) User(uid string) (*User, bool) {
	info, ok := d.Registry.Get(uid)
	if !ok {
		return nil, false
	}
	return d.newUser(uid, info), true
}

func (d *Directory) newUser(uid string, info Info) *User {
	return &User{UID: uid, Info: info, Path: filepath.Join(d.Path, uid)}
}

// DataTrips returns the data trips of every existing user lasting strictly
// longer than minDuration.
func (d *Directory) DataTrips(minDuration time.Duration) ([]*trip.Trip, error) {
	var trips []*trip.Trip
	for _, u := range d.ExistingUsers() {
		ut, err := u.DataTrips()
		if err != nil {
			return nil, err
		}
		for _, t := range ut {
			if t.Duration() > minDuration {
				trips = append(trips, t)
			}
		}
	}
	return trips, nil
}

// Durations sums trip durations per mode over every existing user.
func (d *Directory) Durations() (map[string]time.Duration, error) {
	total := make(map[string]time.Duration)
	for _, u := range d.ExistingUsers() {
		ud, err := u.Durations()
		if err != nil {
			return nil, err
		}
		for mode, dur := range ud {
			total[mode] += dur
		}
	}
	return total, nil
}

// FormatDurations writes the collected hours per mode followed by the total.
// Test modes are left out.
func (d *Directory) FormatDurations(w io.Writer) error {
	durations, err := d.Durations()
	if err != nil {
		return err
	}
	modes := make([]string, 0, len(durations))
	for mode := range durations {
		if !IsTestMode(mode) {
			modes = append(modes, mode)
		}
	}
	sort.Strings(modes)

	var total float64
	for _, mode := range modes {
		h := durations[mode].Hours()
		total += h
		if _, err := fmt.Fprintf(w, "%-10s %04.1fh\n", mode, h); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "%-9s %.1fh\n", "total", total)
	return err
}

func (d *Directory) String() string {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return "Directory(error)"
	}
	return fmt.Sprintf("Directory(%d users)", len(entries))
}

// User is one registered device and its upload directory.
type User struct {
	UID  string
	Info Info
	Path string
}

// Name is the app name the user registered with.
func (u *User) Name() string {
	return u.Info.AppName()
}

// Exists reports whether the user's directory is present.
func (u *User) Exists() bool {
	st, err := os.Stat(u.Path)
	return err == nil && st.IsDir()
}

// Trips groups the user's sensor files by (start, end, mode). Files whose
// name does not follow the raw file contract are ignored. A user without
// a directory has no trips.
func (u *User) Trips() ([]*trip.Trip, error) {
	entries, err := os.ReadDir(u.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	type key struct {
		start, end int64
		mode       string
	}
	byKey := make(map[key]*trip.Trip)
	var trips []*trip.Trip
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, ok := trip.ParseFilename(filepath.Join(u.Path, e.Name()))
		if !ok {
			continue
		}
		k := key{f.Start.UnixMilli(), f.End.UnixMilli(), f.Mode}
		t, ok := byKey[k]
		if !ok {
			t = trip.New(f.Start, f.End, f.Mode)
			byKey[k] = t
			trips = append(trips, t)
		}
		t.Data[f.Sensor] = &f
	}
	return trips, nil
}

// SortedTrips returns Trips ordered by start, mode and end.
func (u *User) SortedTrips() ([]*trip.Trip, error) {
	trips, err := u.Trips()
	if err != nil {
		return nil, err
	}
	sort.Slice(trips, func(i, j int) bool { return trips[i].Less(trips[j]) })
	return trips, nil
}

// DataTrips returns the sorted trips that hold data and were not recorded
// in a test mode.
func (u *User) DataTrips() ([]*trip.Trip, error) {
	trips, err := u.SortedTrips()
	if err != nil {
		return nil, err
	}
	out := trips[:0]
	for _, t := range trips {
		if !IsTestMode(t.Mode) && len(t.Data) > 0 {
			out = append(out, t)
		}
	}
	return out, nil
}

// Durations sums the user's trip durations per mode, test modes included.
func (u *User) Durations() (map[string]time.Duration, error) {
	trips, err := u.Trips()
	if err != nil {
		return nil, err
	}
	d := make(map[string]time.Duration)
	for _, t := range trips {
		if t.Duration() < 0 {
			log.Warnf("%s: trip %s has negative duration %s", u, t, t.Duration())
		}
		d[t.Mode] += t.Duration()
	}
	return d, nil
}

func (u *User) String() string {
	short := u.UID
	if len(short) > 4 {
		short = short[:4]
	}
	return fmt.Sprintf("User(%s:%s)", short, u.Name())
}
