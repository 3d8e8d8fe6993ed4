package sefaria

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/FocuswithJustin/ParashaDeck/core/errors"
	"github.com/FocuswithJustin/ParashaDeck/internal/logging"
)

// WeeklyPortion is the calendar item title of the weekly Torah reading.
const WeeklyPortion = "Parashat Hashavua"

// CalendarEntry describes the weekly reading for a date.
type CalendarEntry struct {
	Title       string    `json:"title"`
	HebrewTitle string    `json:"hebrew_title,omitempty"`
	Ref         string    `json:"ref"`
	HebrewDate  string    `json:"hebrew_date,omitempty"`
	Date        time.Time `json:"date"`
	Aliyot      []string  `json:"aliyot,omitempty"`
}

type bilingual struct {
	En string `json:"en"`
	He string `json:"he"`
}

type calendarResponse struct {
	Date          string `json:"date"`
	HebrewDateStr string `json:"hebrewDateStr"`
	Error         string `json:"error"`
	CalendarItems []struct {
		Title        bilingual `json:"title"`
		DisplayValue bilingual `json:"displayValue"`
		Ref          string    `json:"ref"`
		ExtraDetails struct {
			Aliyot []string `json:"aliyot"`
		} `json:"extraDetails"`
	} `json:"calendar_items"`
}

// Calendar returns the weekly reading for date. The zero time means today.
func (c *Client) Calendar(ctx context.Context, date time.Time) (*CalendarEntry, error) {
	if date.IsZero() {
		date = c.now()
	}
	key := date.Format(time.DateOnly) + "/" + strconv.FormatBool(c.diaspora)
	if entry, ok := c.calendar.Get(key); ok {
		return entry, nil
	}

	q := url.Values{}
	q.Set("year", strconv.Itoa(date.Year()))
	q.Set("month", strconv.Itoa(int(date.Month())))
	q.Set("day", strconv.Itoa(date.Day()))
	if c.diaspora {
		q.Set("diaspora", "1")
	} else {
		q.Set("diaspora", "0")
	}
	reqURL := c.baseURL + "/api/calendars?" + q.Encode()

	start := time.Now()
	body, err := c.get(ctx, reqURL)
	if err != nil {
		logging.UpstreamFetch(ctx, "", "calendar "+key, "network", time.Since(start), err)
		return nil, err
	}
	entry, err := decodeCalendar(reqURL, body, date)
	logging.UpstreamFetch(ctx, "", "calendar "+key, "network", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	c.calendar.Set(key, entry)
	return entry, nil
}

func decodeCalendar(reqURL string, body []byte, requested time.Time) (*CalendarEntry, error) {
	var resp calendarResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.NewParse("json", reqURL, err.Error())
	}
	if resp.Error != "" {
		return nil, &errors.UpstreamError{URL: reqURL, Message: resp.Error}
	}

	for _, item := range resp.CalendarItems {
		if item.Title.En != WeeklyPortion {
			continue
		}
		entry := &CalendarEntry{
			Title:       item.DisplayValue.En,
			HebrewTitle: item.DisplayValue.He,
			Ref:         item.Ref,
			HebrewDate:  resp.HebrewDateStr,
			Date:        requested,
			Aliyot:      item.ExtraDetails.Aliyot,
		}
		if d, err := time.Parse(time.DateOnly, resp.Date); err == nil {
			entry.Date = d
		}
		return entry, nil
	}
	return nil, errors.NewNotFound("calendar item", WeeklyPortion)
}
