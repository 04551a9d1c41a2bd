// Package factory provides the generic registry used to build pluggable
// modules such as metrics sinks and history stores from configuration. A
// module is a type string plus a map of raw settings; factories decode the
// settings into typed structs with Decode.
//
//	reg := factory.NewRegistry[metrics.MetricsSink]()
//	_ = reg.Register("influx", func(conf map[string]any) (metrics.MetricsSink, error) {
//	    var c struct{ URL string `json:"url"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return newInflux(c.URL), nil
//	})
package factory
