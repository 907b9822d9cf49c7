package sender

import (
	"strings"

	"github.com/oferchen/ocrsync/internal/filter"
	"github.com/oferchen/ocrsync/internal/rsyncwire"
)

// RecvFilterList reads the exclusion rule list a client sends before
// the file list, one length-prefixed rule string at a time, up
// to the zero-length terminator (rsync/exclude.c:recv_filter_list).
func RecvFilterList(c *rsyncwire.Conn) (*FilterList, error) {
	fl := &FilterList{}
	for {
		n, err := c.ReadInt32()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		data, err := c.ReadN(int(n))
		if err != nil {
			return nil, err
		}
		fl.Filters = append(fl.Filters, string(data))
	}
	return fl, nil
}

// Rules parses the list's rule strings into matcher rules. A nil or
// empty list yields no rules.
func (fl *FilterList) Rules() ([]filter.Rule, error) {
	if fl == nil || len(fl.Filters) == 0 {
		return nil, nil
	}
	return filter.Parse([]byte(strings.Join(fl.Filters, "\n")), nil)
}

// SendFilterList writes fl in the wire format RecvFilterList expects.
func SendFilterList(c *rsyncwire.Conn, fl *FilterList) error {
	for _, f := range fl.Filters {
		if err := c.WriteInt32(int32(len(f))); err != nil {
			return err
		}
		if err := c.WriteString(f); err != nil {
			return err
		}
	}
	return c.WriteInt32(0)
}
