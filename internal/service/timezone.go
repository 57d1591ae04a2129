package service

import (
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// NANP area codes by IANA zone. Area codes that span zones map to the zone
// covering most of their subscribers.
var nanpZones = map[string]string{
	"America/New_York": `201 202 203 207 212 215 216 234 239 240 248 267 269 276 301 302 304 305 313 315
		317 321 330 336 339 347 351 352 386 401 404 407 410 412 413 434 440 443 470 475 478 484 502 513
		516 517 518 540 551 561 570 571 585 586 603 607 609 610 614 616 617 631 646 667 678 703 704 706
		716 718 727 732 734 740 754 757 762 770 772 774 781 786 802 803 804 810 813 814 828 843 845 848
		856 857 859 860 862 863 864 904 908 910 914 917 919 929 937 941 954 973 978 980 984`,
	"America/Chicago": `205 210 214 217 218 225 251 254 256 262 281 309 312 314 316 318 319 320 334 337
		346 361 409 414 417 430 432 469 479 501 504 507 512 515 563 573 601 608 612 615 618 620 630 636
		641 651 662 708 712 713 715 731 737 763 773 779 785 815 816 817 830 832 847 901 903 913 918 920
		931 936 940 952 956 972 979 985`,
	"America/Denver":      `208 303 307 385 406 435 505 575 719 720 801 915 970`,
	"America/Phoenix":     `480 520 602 623 928`,
	"America/Los_Angeles": `206 209 213 253 310 323 360 408 415 424 425 442 503 509 510 530 541 559 562 619 626 628 650 657 661 669 702 707 714 725 747 760 775 805 818 831 858 909 916 925 949 951 971`,
	"America/Anchorage":   `907`,
	"Pacific/Honolulu":    `808`,
	"America/Toronto":     `289 365 416 418 437 438 450 514 579 581 613 647 705 807 819 905`,
	"America/Vancouver":   `236 250 604 778`,
	"America/Edmonton":    `403 587 780 825`,
	"America/Winnipeg":    `204 431`,
	"America/Regina":      `306 639`,
	"America/Halifax":     `782 902`,
	"America/Moncton":     `506`,
	"America/St_Johns":    `709`,
}

// Country calling codes outside NANP, matched longest prefix first.
var countryZones = map[string]string{
	"20":  "Africa/Cairo",
	"27":  "Africa/Johannesburg",
	"30":  "Europe/Athens",
	"31":  "Europe/Amsterdam",
	"32":  "Europe/Brussels",
	"33":  "Europe/Paris",
	"34":  "Europe/Madrid",
	"39":  "Europe/Rome",
	"41":  "Europe/Zurich",
	"43":  "Europe/Vienna",
	"44":  "Europe/London",
	"45":  "Europe/Copenhagen",
	"46":  "Europe/Stockholm",
	"47":  "Europe/Oslo",
	"48":  "Europe/Warsaw",
	"49":  "Europe/Berlin",
	"52":  "America/Mexico_City",
	"54":  "America/Argentina/Buenos_Aires",
	"55":  "America/Sao_Paulo",
	"60":  "Asia/Kuala_Lumpur",
	"61":  "Australia/Sydney",
	"62":  "Asia/Jakarta",
	"63":  "Asia/Manila",
	"64":  "Pacific/Auckland",
	"65":  "Asia/Singapore",
	"66":  "Asia/Bangkok",
	"7":   "Europe/Moscow",
	"81":  "Asia/Tokyo",
	"82":  "Asia/Seoul",
	"84":  "Asia/Ho_Chi_Minh",
	"86":  "Asia/Shanghai",
	"90":  "Europe/Istanbul",
	"91":  "Asia/Kolkata",
	"234": "Africa/Lagos",
	"351": "Europe/Lisbon",
	"353": "Europe/Dublin",
	"358": "Europe/Helsinki",
	"852": "Asia/Hong_Kong",
	"966": "Asia/Riyadh",
	"971": "Asia/Dubai",
	"972": "Asia/Jerusalem",
}

var areaCodeZone = func() map[string]string {
	m := make(map[string]string)
	for zone, codes := range nanpZones {
		for _, code := range strings.Fields(codes) {
			m[code] = zone
		}
	}
	return m
}()

// TimezoneResolver derives a callee's local timezone from the dialed number
// and caches loaded locations.
type TimezoneResolver struct {
	fallback  string
	locations *cache.Cache
	logger    *zap.Logger
}

func NewTimezoneResolver(fallback string, logger *zap.Logger) *TimezoneResolver {
	return &TimezoneResolver{
		fallback:  fallback,
		locations: cache.New(cache.NoExpiration, 0),
		logger:    logger,
	}
}

// ZoneFor returns the IANA zone name for an E.164 number, or the fallback
// zone when the number's region is unknown.
func (r *TimezoneResolver) ZoneFor(number string) string {
	digits := strings.TrimPrefix(number, "+")
	if len(digits) == 11 && digits[0] == '1' {
		if zone, ok := areaCodeZone[digits[1:4]]; ok {
			return zone
		}
		return r.fallback
	}
	for n := 3; n >= 1; n-- {
		if len(digits) <= n {
			continue
		}
		if zone, ok := countryZones[digits[:n]]; ok {
			return zone
		}
	}
	return r.fallback
}

// Location loads name, falling back to the default zone when name is not a
// valid IANA zone.
func (r *TimezoneResolver) Location(name string) *time.Location {
	if v, ok := r.locations.Get(name); ok {
		return v.(*time.Location)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		r.logger.Warn("unknown timezone, using default",
			zap.String("timezone", name),
			zap.String("default", r.fallback))
		if name == r.fallback {
			return time.UTC
		}
		return r.Location(r.fallback)
	}
	r.locations.Set(name, loc, cache.NoExpiration)
	return loc
}
