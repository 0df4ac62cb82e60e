// Command seo-crawler crawls websites and reports SEO issues.
package main

import "github.com/JakeFAU/seo-site-crawler/cmd"

func main() {
	cmd.Execute()
}
